package registry

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
)

// MappingDoc is a mapping document in Firestore, keyed by domain
type MappingDoc struct {
	Domain    string    `firestore:"domain"`
	SiteID    int64     `firestore:"site_id"`
	ForceSSL  bool      `firestore:"force_ssl"`
	Active    bool      `firestore:"active"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (d MappingDoc) toMapping() Mapping {
	return Mapping{
		Domain:    d.Domain,
		SiteID:    d.SiteID,
		ForceSSL:  d.ForceSSL,
		Active:    d.Active,
		UpdatedAt: d.UpdatedAt,
	}
}

// FirestoreStore keeps mappings in a Firestore collection
type FirestoreStore struct {
	client     *firestore.Client
	projectID  string
	collection string
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore creates a Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("registry", "Using Firestore domain registry", map[string]any{
		"project":    projectID,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, domain string) (*Mapping, error) {
	snap, err := s.client.Collection(s.collection).Doc(origin.NormalizeHost(domain)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	var doc MappingDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping: %w", err)
	}
	m := doc.toMapping()
	return &m, nil
}

func (s *FirestoreStore) Put(ctx context.Context, m Mapping) error {
	m.Domain = origin.NormalizeHost(m.Domain)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	doc := MappingDoc{
		Domain:    m.Domain,
		SiteID:    m.SiteID,
		ForceSSL:  m.ForceSSL,
		Active:    m.Active,
		UpdatedAt: m.UpdatedAt,
	}
	if _, err := s.client.Collection(s.collection).Doc(m.Domain).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store mapping: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, domain string) error {
	_, err := s.client.Collection(s.collection).Doc(origin.NormalizeHost(domain)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]Mapping, error) {
	iter := s.client.Collection(s.collection).OrderBy("domain", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []Mapping
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate mappings: %w", err)
		}

		var doc MappingDoc
		if err := snap.DataTo(&doc); err != nil {
			log.LogError("Failed to unmarshal mapping %s: %v", snap.Ref.ID, err)
			continue
		}
		out = append(out, doc.toMapping())
	}
	return out, nil
}

func (s *FirestoreStore) SetSSLCapability(ctx context.Context, domain string, secure bool) error {
	_, err := s.client.Collection(s.collection).Doc(origin.NormalizeHost(domain)).Update(ctx, []firestore.Update{
		{Path: "force_ssl", Value: secure},
		{Path: "updated_at", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return ErrDomainNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update ssl flag: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
