package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/stream"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		// Filter for models that support generateContent.
		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}
		if !supportsGenerate {
			continue
		}
		models = append(models, domain.Model{
			ID:        strings.TrimPrefix(m.Name, "models/"),
			Name:      m.DisplayName,
			Provider:  "gemini",
			MaxTokens: int(m.InputTokenLimit),
		})
	}
	return models, nil
}

// Stream starts a streaming generation. Thought parts become reasoning
// chunks and each function call becomes a single tool call chunk carrying
// its complete arguments.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	slog.Debug("Gemini.Stream", "model", req.Model, "messageCount", len(req.Messages))

	contents, system, err := buildContents(req.Instructions, req.Messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Tools:             buildToolDeclarations(req.Tools),
		SystemInstruction: system,
		ThinkingConfig:    &genai.ThinkingConfig{IncludeThoughts: true},
	}

	streamCtx, cancel := context.WithCancel(ctx)
	return &geminiStream{
		msgID:  "run-" + uuid.NewString(),
		iter:   p.client.Models.GenerateContentStream(streamCtx, req.Model, contents, config),
		cancel: cancel,
	}, nil
}

// buildContents converts the history to genai contents. System messages are
// appended to the system instruction.
func buildContents(instructions string, messages []domain.Message) ([]*genai.Content, *genai.Content, error) {
	var (
		contents []*genai.Content
		system   []string
	)
	if instructions != "" {
		system = append(system, instructions)
	}
	toolNames := make(map[string]string) // tool call ID -> name

	for _, msg := range messages {
		var parts []*genai.Part
		role := string(genai.RoleUser)

		switch domain.ParseRole(string(msg.Role)) {
		case domain.RoleSystem:
			if s := msg.Content.String(); s != "" {
				system = append(system, s)
			}
			continue

		case domain.RoleUser:
			var err error
			parts, err = contentParts(msg.Content)
			if err != nil {
				return nil, nil, err
			}

		case domain.RoleAssistant:
			role = string(genai.RoleModel)
			if s := msg.Content.String(); s != "" {
				parts = append(parts, &genai.Part{Text: s})
			}
			for _, tc := range msg.ToolCalls {
				toolNames[tc.ID] = tc.Name
				args := map[string]any{}
				if len(tc.Args) > 0 {
					if err := json.Unmarshal(tc.Args, &args); err != nil {
						args = map[string]any{"input": string(tc.Args)}
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}

		case domain.RoleTool:
			name := msg.Name
			if name == "" {
				name = toolNames[msg.ToolCallID]
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     name,
					Response: map[string]any{"result": msg.Content.String()},
				},
			})

		default:
			continue
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	var systemInstruction *genai.Content
	if len(system) > 0 {
		systemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	return contents, systemInstruction, nil
}

func contentParts(c domain.Content) ([]*genai.Part, error) {
	if !c.IsMultipart() {
		if c.Text == "" {
			return nil, nil
		}
		return []*genai.Part{{Text: c.Text}}, nil
	}
	var parts []*genai.Part
	for _, cp := range c.Parts {
		switch cp.Type {
		case domain.ContentTypeText:
			if cp.Text != "" {
				parts = append(parts, &genai.Part{Text: cp.Text})
			}
		case domain.ContentTypeImageURL:
			p, err := imagePart(cp.URL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// imagePart inlines data URLs and references anything else by URI.
func imagePart(url string) (*genai.Part, error) {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		meta, data, ok := strings.Cut(rest, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("unsupported data url")
		}
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decoding data url: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{
			MIMEType: strings.TrimSuffix(meta, ";base64"),
			Data:     b,
		}}, nil
	}
	mimeType := mime.TypeByExtension(path.Ext(url))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &genai.Part{FileData: &genai.FileData{FileURI: url, MIMEType: mimeType}}, nil
}

func buildToolDeclarations(specs []model.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(spec.Parameters)),
		}
		for _, param := range spec.Parameters {
			schema.Properties[param.Name] = &genai.Schema{
				Type:        schemaType(param.Type),
				Description: param.Description,
			}
			if param.Required {
				schema.Required = append(schema.Required, param.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	}
	return genai.TypeString
}

// geminiStream wraps the Gemini streaming iterator.
type geminiStream struct {
	msgID  string
	iter   iter.Seq2[*genai.GenerateContentResponse, error]
	cancel context.CancelFunc
}

func (s *geminiStream) Chunks() iter.Seq2[stream.Chunk, error] {
	return model.Lookahead(s.msgID, s.chunks)
}

func (s *geminiStream) chunks(yield func(stream.Chunk, error) bool) {
	calls := 0
	for resp, err := range s.iter {
		if err != nil {
			yield(nil, fmt.Errorf("gemini stream: %w", err))
			return
		}
		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				for _, c := range s.partChunks(part, &calls) {
					if !yield(c, nil) {
						return
					}
				}
			}
		}
	}
}

func (s *geminiStream) partChunks(part *genai.Part, calls *int) []stream.Chunk {
	var out []stream.Chunk
	switch {
	case part.Text != "" && part.Thought:
		out = append(out, stream.ReasoningChunk{MessageID: s.msgID, Text: part.Text})
	case part.Text != "":
		out = append(out, stream.TextChunk{MessageID: s.msgID, Text: part.Text})
	}
	if fc := part.FunctionCall; fc != nil {
		id := fc.ID
		if id == "" {
			id = "call-" + uuid.NewString()
		}
		args, err := json.Marshal(fc.Args)
		if err != nil || fc.Args == nil {
			args = []byte(`{}`)
		}
		out = append(out, stream.ToolCallChunk{
			MessageID:    s.msgID,
			Index:        *calls,
			ID:           id,
			Name:         fc.Name,
			ArgsFragment: string(args),
		})
		*calls++
	}
	return out
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}
