package document

import (
	"context"
	"errors"

	"github.com/kw-96/AutoKit-sub000/internal/batch"
	"github.com/kw-96/AutoKit-sub000/internal/registry"
)

// Command names served by the store.
const (
	CommandGetDocumentInfo         = "get_document_info"
	CommandGetNodeInfo             = "get_node_info"
	CommandCreateRectangle         = "create_rectangle"
	CommandCreateText              = "create_text"
	CommandSetTextContent          = "set_text_content"
	CommandDeleteNode              = "delete_node"
	CommandDeleteMultipleNodes     = "delete_multiple_nodes"
	CommandSetMultipleTextContents = "set_multiple_text_contents"
)

type nodeParams struct {
	NodeID string `json:"nodeId"`
}

type shapeParams struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Name     string  `json:"name"`
	ParentID string  `json:"parentId"`
	Text     string  `json:"text"`
}

type textParams struct {
	NodeID string `json:"nodeId"`
	Text   string `json:"text"`
}

type deleteManyParams struct {
	NodeIDs []string `json:"nodeIds"`
}

type replaceManyParams struct {
	NodeID string       `json:"nodeId"`
	Text   []textParams `json:"text"`
}

// NodeResult is the per-node entry of a batch terminal payload.
type NodeResult struct {
	NodeID  string `json:"nodeId"`
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DeleteManyResult is the terminal payload of delete_multiple_nodes.
type DeleteManyResult struct {
	Success           bool         `json:"success"`
	NodesDeleted      int          `json:"nodesDeleted"`
	NodesFailed       int          `json:"nodesFailed"`
	TotalNodes        int          `json:"totalNodes"`
	Results           []NodeResult `json:"results"`
	CompletedInChunks int          `json:"completedInChunks"`
	CommandID         string       `json:"commandId"`
}

// ReplaceManyResult is the terminal payload of set_multiple_text_contents.
type ReplaceManyResult struct {
	Success             bool         `json:"success"`
	NodeID              string       `json:"nodeId"`
	ReplacementsApplied int          `json:"replacementsApplied"`
	ReplacementsFailed  int          `json:"replacementsFailed"`
	TotalReplacements   int          `json:"totalReplacements"`
	Results             []NodeResult `json:"results"`
	CompletedInChunks   int          `json:"completedInChunks"`
	CommandID           string       `json:"commandId"`
}

// Register adds the store's commands to c.
func Register(c *registry.Commands, s *Store) error {
	return errors.Join(
		registry.Register(c, CommandGetDocumentInfo, func(ctx context.Context, _ struct{}) (Info, error) {
			return s.Info(), nil
		}),
		registry.Register(c, CommandGetNodeInfo, func(ctx context.Context, p nodeParams) (Node, error) {
			if p.NodeID == "" {
				return Node{}, errors.New("Missing nodeId parameter")
			}
			return s.Get(p.NodeID)
		}),
		registry.Register(c, CommandCreateRectangle, func(ctx context.Context, p shapeParams) (Node, error) {
			return s.Create(Node{
				Name: p.Name, Type: TypeRectangle, ParentID: p.ParentID,
				X: p.X, Y: p.Y, Width: orDefault(p.Width, 100), Height: orDefault(p.Height, 100),
			})
		}),
		registry.Register(c, CommandCreateText, func(ctx context.Context, p shapeParams) (Node, error) {
			return s.Create(Node{
				Name: p.Name, Type: TypeText, ParentID: p.ParentID,
				X: p.X, Y: p.Y, Characters: p.Text,
			})
		}),
		registry.Register(c, CommandSetTextContent, func(ctx context.Context, p textParams) (Node, error) {
			if p.NodeID == "" {
				return Node{}, errors.New("Missing nodeId parameter")
			}
			return s.SetText(p.NodeID, p.Text)
		}),
		registry.Register(c, CommandDeleteNode, func(ctx context.Context, p nodeParams) (Node, error) {
			if p.NodeID == "" {
				return Node{}, errors.New("Missing nodeId parameter")
			}
			return s.Delete(p.NodeID)
		}),
		registry.RegisterBatch(c, CommandDeleteMultipleNodes, registry.BatchSpec[deleteManyParams, string, Node]{
			Items: func(p deleteManyParams) ([]string, error) {
				if len(p.NodeIDs) == 0 {
					return nil, errors.New("Missing or invalid nodeIds parameter")
				}
				return p.NodeIDs, nil
			},
			Item: func(ctx context.Context, _ deleteManyParams, id string) (Node, error) {
				return s.Delete(id)
			},
			Summarize: func(requestID string, _ deleteManyParams, sum batch.Summary[string, Node]) any {
				results := make([]NodeResult, 0, len(sum.Results))
				for _, r := range sum.Results {
					results = append(results, NodeResult{NodeID: r.Item, Success: r.Success, Name: r.Result.Name, Error: r.Error})
				}
				return DeleteManyResult{
					Success:           sum.Success(),
					NodesDeleted:      sum.SuccessCount,
					NodesFailed:       sum.FailureCount,
					TotalNodes:        sum.TotalItems,
					Results:           results,
					CompletedInChunks: sum.ChunkCount,
					CommandID:         requestID,
				}
			},
		}),
		registry.RegisterBatch(c, CommandSetMultipleTextContents, registry.BatchSpec[replaceManyParams, textParams, Node]{
			Items: func(p replaceManyParams) ([]textParams, error) {
				if p.NodeID == "" {
					return nil, errors.New("Missing nodeId parameter")
				}
				if len(p.Text) == 0 {
					return nil, errors.New("Missing or invalid text parameter")
				}
				return p.Text, nil
			},
			Item: func(ctx context.Context, _ replaceManyParams, t textParams) (Node, error) {
				if t.NodeID == "" {
					return Node{}, errors.New("Missing nodeId in replacement")
				}
				return s.SetText(t.NodeID, t.Text)
			},
			Summarize: func(requestID string, p replaceManyParams, sum batch.Summary[textParams, Node]) any {
				results := make([]NodeResult, 0, len(sum.Results))
				for _, r := range sum.Results {
					results = append(results, NodeResult{NodeID: r.Item.NodeID, Success: r.Success, Name: r.Result.Name, Error: r.Error})
				}
				return ReplaceManyResult{
					Success:             sum.Success(),
					NodeID:              p.NodeID,
					ReplacementsApplied: sum.SuccessCount,
					ReplacementsFailed:  sum.FailureCount,
					TotalReplacements:   sum.TotalItems,
					Results:             results,
					CompletedInChunks:   sum.ChunkCount,
					CommandID:           requestID,
				}
			},
		}),
	)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
