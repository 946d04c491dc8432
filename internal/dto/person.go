package dto

type PersonResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Embeddings int    `json:"embeddings"`
	ImageURL   string `json:"image_url,omitempty"`
}

type PersonListResponse struct {
	Count  int              `json:"count"`
	People []PersonResponse `json:"people"`
}

type DeleteResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}
