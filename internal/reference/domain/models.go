package domain

type Company struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	PartnerID *int64 `json:"partner_id,omitempty"`
}

type Partner struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProductCode struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}
