package person

import (
	"context"
	"errors"

	"github.com/aura-rover/aura-backend/internal/facematch"
	"github.com/aura-rover/aura-backend/internal/shared"
	"github.com/qdrant/go-client/qdrant"
	"gorm.io/gorm"
)

const facesCollection = "faces"

// Store pairs Person rows in the database with their embedding points
// in qdrant. The qdrant collection is created lazily once the first
// embedding reveals the vector dimension.
type Store struct {
	db     *gorm.DB
	qdrant *qdrant.Client
}

func NewStore(db *gorm.DB, qdrantClient *qdrant.Client) *Store {
	return &Store{
		db:     db,
		qdrant: qdrantClient,
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Person{})
}

func (s *Store) Create(ctx context.Context, p *Person) error {
	if p.ID == "" {
		p.ID = shared.NewID("person_")
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Person, error) {
	var p Person
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &p, err
}

func (s *Store) GetByName(ctx context.Context, name string) (*Person, error) {
	var p Person
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &p, err
}

// GetOrCreate returns the person with the given name, creating the row
// on first registration.
func (s *Store) GetOrCreate(ctx context.Context, name string) (*Person, error) {
	p, err := s.GetByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	p = &Person{ID: shared.NewID("person_"), Name: name}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]*Person, error) {
	var people []*Person
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&people).Error
	return people, err
}

// Delete removes the person row and every embedding point registered
// for them.
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Person{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return s.deleteEmbeddings(ctx, id)
}

// AddEmbedding registers one more reference vector for a person.
func (s *Store) AddEmbedding(ctx context.Context, personID string, vector []float32) error {
	if s.qdrant == nil {
		return errors.New("qdrant client not configured")
	}
	if !facematch.Valid(vector) {
		return errors.New("embedding vector is not usable")
	}

	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	normalized := facematch.Normalize(vector)
	_, err := s.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: facesCollection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(pointUUID()),
				Vectors: qdrant.NewVectors(normalized...),
				Payload: qdrant.NewValueMap(map[string]any{"person_id": personID}),
			},
		},
	})
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&Person{}).Where("id = ?", personID).
		UpdateColumn("embeddings", gorm.Expr("embeddings + 1")).Error
}

// AllEmbeddings returns every stored vector grouped by person id.
func (s *Store) AllEmbeddings(ctx context.Context) (map[string][][]float32, error) {
	if s.qdrant == nil {
		return nil, errors.New("qdrant client not configured")
	}

	out := make(map[string][][]float32)
	var offset *qdrant.PointId
	for {
		points, err := s.qdrant.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: facesCollection,
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			break
		}

		for _, p := range points {
			personID := p.Payload["person_id"].GetStringValue()
			if personID == "" {
				continue
			}
			vec := p.Vectors.GetVector().GetData()
			if len(vec) == 0 {
				continue
			}
			out[personID] = append(out[personID], vec)
		}

		if len(points) < 256 {
			break
		}
		offset = points[len(points)-1].Id
	}

	return out, nil
}

// ReferenceVectors collapses every person's registrations into named
// representative vectors ready for the matcher. People without a single
// usable vector are omitted.
func (s *Store) ReferenceVectors(ctx context.Context) ([]facematch.Reference, error) {
	grouped, err := s.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(grouped) == 0 {
		return nil, nil
	}

	people, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(people))
	for _, p := range people {
		names[p.ID] = p.Name
	}

	refs := make([]facematch.Reference, 0, len(grouped))
	for _, p := range people {
		vectors, ok := grouped[p.ID]
		if !ok {
			continue
		}
		rep := facematch.Representative(vectors)
		if rep == nil {
			continue
		}
		refs = append(refs, facematch.Reference{
			PersonID: p.ID,
			Name:     names[p.ID],
			Vector:   rep,
		})
	}
	return refs, nil
}

func (s *Store) deleteEmbeddings(ctx context.Context, personID string) error {
	if s.qdrant == nil {
		return nil
	}
	_, err := s.qdrant.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: facesCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("person_id", personID),
			},
		}),
	})
	return err
}

func (s *Store) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.qdrant.CollectionExists(ctx, facesCollection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: facesCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
}

// pointUUID formats a fresh random id in the UUID shape qdrant expects
// for point ids.
func pointUUID() string {
	raw := shared.NewID("")
	return raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:32]
}
