package dto

type BuyerInput struct {
	NationalID   string
	Name         string
	BusinessName string
	NTN          string
	Phone        string
	Address      string
	IsDealer     bool
}

// IsEmpty reports whether the input carries nothing that identifies a buyer.
func (b *BuyerInput) IsEmpty() bool {
	return b == nil || (b.NationalID == "" && b.BusinessName == "" && b.Name == "")
}
