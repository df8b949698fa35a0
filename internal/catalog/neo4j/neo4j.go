// Package neo4j implements catalog.Repository on a Neo4j graph.
// Documents, chunks, and mentioned years become nodes so lineage can
// be walked in either direction.
package neo4j

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/quarrylabs/quarry/internal/catalog"
)

// Repository is a Neo4j-backed lineage catalog.
type Repository struct {
	driver neo4j.DriverWithContext
}

var _ catalog.Repository = (*Repository)(nil)

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) RecordDocument(ctx context.Context, doc catalog.DocumentInfo, chunks []catalog.ChunkRecord) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (d:Document {id: $id}) "+
				"SET d.name = $name, d.pages = $pages, d.chunks = $chunks, d.ingested_at = $at",
			map[string]any{
				"id":     doc.ID,
				"name":   doc.Name,
				"pages":  doc.Pages,
				"chunks": doc.Chunks,
				"at":     doc.IngestedAt.UTC(),
			})
		if err != nil {
			return nil, err
		}

		// Drop stale chunk lineage before rewriting, so re-ingesting a
		// shrunken document leaves no orphans.
		_, err = tx.Run(ctx,
			"MATCH (:Document {id: $id})-[:HAS_CHUNK]->(c:Chunk) DETACH DELETE c",
			map[string]any{"id": doc.ID})
		if err != nil {
			return nil, err
		}

		for _, ch := range chunks {
			_, err := tx.Run(ctx,
				"MATCH (d:Document {id: $doc}) "+
					"MERGE (c:Chunk {id: $id}) "+
					"SET c.ordinal = $ordinal, c.page = $page, c.financial = $financial "+
					"MERGE (d)-[:HAS_CHUNK]->(c)",
				map[string]any{
					"doc":       doc.ID,
					"id":        ch.ID,
					"ordinal":   ch.Ordinal,
					"page":      ch.Page,
					"financial": ch.Financial,
				})
			if err != nil {
				return nil, err
			}
			for _, year := range ch.Years {
				_, err := tx.Run(ctx,
					"MATCH (c:Chunk {id: $id}) "+
						"MERGE (y:Year {value: $year}) "+
						"MERGE (c)-[:MENTIONS_YEAR]->(y)",
					map[string]any{"id": ch.ID, "year": year})
				if err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("record document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *Repository) ListDocuments(ctx context.Context) ([]catalog.DocumentInfo, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (d:Document) "+
				"OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk) "+
				"OPTIONAL MATCH (c)-[:MENTIONS_YEAR]->(y:Year) "+
				"RETURN d.id, d.name, d.pages, d.ingested_at, count(DISTINCT c) AS chunks, collect(DISTINCT y.value) AS years "+
				"ORDER BY d.name",
			nil)
		if err != nil {
			return nil, err
		}

		var docs []catalog.DocumentInfo
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("d.id")
			name, _ := rec.Get("d.name")
			pages, _ := rec.Get("d.pages")
			chunks, _ := rec.Get("chunks")
			years, _ := rec.Get("years")

			info := catalog.DocumentInfo{
				ID:     id.(string),
				Name:   name.(string),
				Pages:  int(pages.(int64)),
				Chunks: int(chunks.(int64)),
			}
			for _, y := range years.([]any) {
				if y != nil {
					info.Years = append(info.Years, int(y.(int64)))
				}
			}
			sort.Ints(info.Years)
			docs = append(docs, info)
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]catalog.DocumentInfo), nil
}

func (r *Repository) Years(ctx context.Context) ([]int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (y:Year) RETURN y.value ORDER BY y.value", nil)
		if err != nil {
			return nil, err
		}
		var years []int
		for records.Next(ctx) {
			v, _ := records.Record().Get("y.value")
			years = append(years, int(v.(int64)))
		}
		return years, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]int), nil
}

func (r *Repository) RemoveAll(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MATCH (n) WHERE n:Document OR n:Chunk OR n:Year DETACH DELETE n", nil)
		return nil, err
	})
	return err
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
