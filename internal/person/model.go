package person

import "time"

// Person is a stable identity the rover can recognize. The reference
// vectors themselves live in qdrant, one point per registration, keyed
// back to the person through the point payload.
type Person struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"uniqueIndex"`
	Embeddings int       `json:"embeddings"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Person) TableName() string { return "people" }
