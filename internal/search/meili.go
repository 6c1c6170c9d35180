package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCases = "casebook_cases"

// Meili is the Meilisearch backend with a background health monitor.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates the client and configures the cases index. A failed
// initial connection is tolerated; the health loop reconfigures the index
// once Meilisearch recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCases,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCases, err)
	}

	index := m.client.Index(idxCases)
	filterable := []interface{}{"status", "clinic"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCases, err)
	}
	searchable := []string{"caseId", "clinicianName", "clinicianEmail", "childName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCases, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexCase upserts one case document.
func (m *Meili) IndexCase(doc Doc) error {
	if _, err := m.client.Index(idxCases).AddDocuments([]Doc{doc}, nil); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search queries the cases index.
func (m *Meili) Search(query string, limit int) ([]Doc, error) {
	if limit <= 0 {
		limit = 20
	}
	resp, err := m.client.Index(idxCases).Search(query, &meili.SearchRequest{Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("search cases: %w", err)
	}

	docs := make([]Doc, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}
