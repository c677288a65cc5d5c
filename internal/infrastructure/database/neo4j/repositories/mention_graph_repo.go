package repositories

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	driver "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/neo4j"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

const (
	defaultGraphLimit = 25
	maxGraphLimit     = 500
)

var schemaStatements = []string{
	`CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT entity_key IF NOT EXISTS FOR (e:Entity) REQUIRE e.key IS UNIQUE`,
	`CREATE INDEX entity_label IF NOT EXISTS FOR (e:Entity) ON (e.label)`,
}

const writeDocumentCypher = `
	MERGE (d:Document {id: $id})
	SET d.tables_version = $tablesVersion, d.sentences = $sentences, d.updated_at = datetime()
	WITH d
	OPTIONAL MATCH (d)-[old:MENTIONS]->()
	DELETE old
	WITH DISTINCT d
	UNWIND $mentions AS m
	MERGE (e:Entity {key: m.key})
	ON CREATE SET e.label = m.label, e.name = m.name, e.created_at = datetime()
	CREATE (d)-[:MENTIONS {start: m.start, end: m.end, text: m.text, source: m.source, sentence_idx: m.sentenceIdx}]->(e)
`

const deleteDocumentCypher = `
	MATCH (d:Document {id: $id})
	DETACH DELETE d
`

const documentsMentioningCypher = `
	MATCH (d:Document)-[:MENTIONS]->(e:Entity {key: $key})
	RETURN DISTINCT d.id AS id
	ORDER BY id
	LIMIT $limit
`

const coMentionsCypher = `
	MATCH (e:Entity {key: $key})<-[:MENTIONS]-(d:Document)-[:MENTIONS]->(other:Entity)
	WHERE other.key <> $key
	RETURN other.label AS label, other.name AS name, count(DISTINCT d) AS documents
	ORDER BY documents DESC, name
	LIMIT $limit
`

// CoMention is an entity that shares documents with another entity.
type CoMention struct {
	Label     string `json:"label"`
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
}

// MentionGraph stores resolved entities as a (Document)-[:MENTIONS]->(Entity)
// graph. Entities are merged across documents by EntityKey.
type MentionGraph struct {
	driver driver.DriverInterface
	log    logging.Logger
}

func NewMentionGraph(d driver.DriverInterface, log logging.Logger) *MentionGraph {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &MentionGraph{driver: d, log: log}
}

// Name identifies the graph when used as a result sink.
func (g *MentionGraph) Name() string { return "neo4j" }

// EntityKey is the identity of an entity node: its label plus the canonical
// form when one was produced, else the lower-cased surface text.
func EntityKey(e entity.Entity) string {
	return e.Label + ":" + canonicalName(e)
}

func canonicalName(e entity.Entity) string {
	switch {
	case e.DateISO != "":
		return e.DateISO
	case e.Normalized != "":
		return strings.ToLower(e.Normalized)
	default:
		return strings.ToLower(e.Text)
	}
}

func displayName(e entity.Entity) string {
	if e.Normalized != "" {
		return e.Normalized
	}
	return e.Text
}

// EnsureSchema creates the uniqueness constraints the merges rely on.
func (g *MentionGraph) EnsureSchema(ctx context.Context) error {
	_, err := g.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		for _, stmt := range schemaStatements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Write replaces the document's mention edges with the entities of res.
func (g *MentionGraph) Write(ctx context.Context, res *entity.Result) error {
	if res == nil || res.DocumentID == "" {
		return errors.New(errors.ErrCodeValidation, "result requires a document id")
	}

	mentions := make([]map[string]any, 0, len(res.Entities))
	for _, e := range res.Entities {
		mentions = append(mentions, map[string]any{
			"key":         EntityKey(e),
			"label":       e.Label,
			"name":        displayName(e),
			"text":        e.Text,
			"start":       int64(e.Start),
			"end":         int64(e.End),
			"source":      string(e.Source),
			"sentenceIdx": int64(e.SentenceIdx),
		})
	}
	params := map[string]any{
		"id":            res.DocumentID,
		"tablesVersion": res.TablesVersion,
		"sentences":     int64(res.Sentences),
		"mentions":      mentions,
	}

	created, err := g.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, writeDocumentCypher, params)
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil || summary == nil {
			return 0, err
		}
		return summary.Counters().RelationshipsCreated(), nil
	})
	if err != nil {
		return err
	}
	g.log.Debug("mention graph updated",
		logging.DocumentID(res.DocumentID),
		logging.Int("mentions", len(mentions)),
		logging.Any("relationships_created", created))
	return nil
}

// DeleteDocument removes a document node and its mention edges. Entity nodes
// are kept since other documents may reference them.
func (g *MentionGraph) DeleteDocument(ctx context.Context, id string) error {
	_, err := g.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, deleteDocumentCypher, map[string]any{"id": id})
		return nil, err
	})
	return err
}

// DocumentsMentioning lists the ids of documents that mention e.
func (g *MentionGraph) DocumentsMentioning(ctx context.Context, e entity.Entity, limit int) ([]string, error) {
	params := map[string]any{"key": EntityKey(e), "limit": int64(clamp(limit))}
	out, err := g.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, documentsMentioningCypher, params)
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, result, func(r *neo4j.Record) (string, error) {
			id, _, err := neo4j.GetRecordValue[string](r, "id")
			return id, err
		})
	})
	if err != nil {
		return nil, err
	}
	ids, _ := out.([]string)
	return ids, nil
}

// CoMentions returns the entities that most often appear in the same
// documents as e.
func (g *MentionGraph) CoMentions(ctx context.Context, e entity.Entity, limit int) ([]CoMention, error) {
	params := map[string]any{"key": EntityKey(e), "limit": int64(clamp(limit))}
	out, err := g.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, coMentionsCypher, params)
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, result, func(r *neo4j.Record) (CoMention, error) {
			var c CoMention
			var err error
			if c.Label, _, err = neo4j.GetRecordValue[string](r, "label"); err != nil {
				return c, err
			}
			if c.Name, _, err = neo4j.GetRecordValue[string](r, "name"); err != nil {
				return c, err
			}
			c.Documents, _, err = neo4j.GetRecordValue[int64](r, "documents")
			return c, err
		})
	})
	if err != nil {
		return nil, err
	}
	items, _ := out.([]CoMention)
	return items, nil
}

func clamp(limit int) int {
	if limit <= 0 {
		return defaultGraphLimit
	}
	if limit > maxGraphLimit {
		return maxGraphLimit
	}
	return limit
}

//Personal.AI order the ending
