package core

// SitePair is an ordered pair of (reference index, subject index).
type SitePair struct {
	Reference int
	Subject   int
}

// SiteCategories partitions the sites of a reference structure R and a
// subject structure S.
//
// MR[i] and MS[i] form the i-th matched pair. NR and NS hold the unmatched
// sites of each structure and NRS the cross-structure pairs whose
// augmentation spheres overlap.
type SiteCategories struct {
	MR  []int
	MS  []int
	NR  []int
	NS  []int
	NRS []SitePair
}

// NRSReference returns the reference indices of the NRS pairs.
func (c SiteCategories) NRSReference() []int {
	out := make([]int, len(c.NRS))
	for i, p := range c.NRS {
		out[i] = p.Reference
	}
	return out
}

// NRSSubject returns the subject indices of the NRS pairs.
func (c SiteCategories) NRSSubject() []int {
	out := make([]int, len(c.NRS))
	for i, p := range c.NRS {
		out[i] = p.Subject
	}
	return out
}
