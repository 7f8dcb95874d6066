package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/graph"
	"github.com/AnshRaj112/accountd/internal/services"
)

// MaxUploadSize bounds a multipart GraphQL request, files included.
const MaxUploadSize = 10 << 20

// Executor runs a decoded GraphQL request.
type Executor interface {
	Execute(ctx context.Context, req graph.Request) *graphql.Result
}

// GraphQLHandler serves the API over HTTP: POST with a JSON body, POST with
// the GraphQL multipart request format for file uploads, and GET for
// queries.
type GraphQLHandler struct {
	exec Executor
	log  *zap.Logger
}

func NewGraphQLHandler(exec Executor, logger *zap.Logger) *GraphQLHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLHandler{exec: exec, log: logger}
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		req graph.Request
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = decodeQueryString(r)
		if err == nil && isMutation(req) {
			writeRequestError(w, http.StatusMethodNotAllowed, "mutations must use POST")
			return
		}
	case http.MethodPost:
		req, err = h.decodeBody(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeRequestError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err != nil {
		writeRequestError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeRequestError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := h.exec.Execute(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Warn("failed to write graphql response", zap.Error(err))
	}
}

func decodeQueryString(r *http.Request) (graph.Request, error) {
	q := r.URL.Query()
	req := graph.Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
	if raw := q.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return graph.Request{}, fmt.Errorf("invalid variables: %w", err)
		}
	}
	return req, nil
}

func (h *GraphQLHandler) decodeBody(w http.ResponseWriter, r *http.Request) (graph.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(w, r)
	}

	var req graph.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxUploadSize)).Decode(&req); err != nil {
		return graph.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

// decodeMultipart reads an "operations" field holding the request, a "map"
// field assigning each file part to variable paths, and the file parts.
func decodeMultipart(w http.ResponseWriter, r *http.Request) (graph.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return graph.Request{}, fmt.Errorf("failed to parse form: %w", err)
	}

	var req graph.Request
	if err := json.Unmarshal([]byte(r.FormValue("operations")), &req); err != nil {
		return graph.Request{}, fmt.Errorf("invalid operations field: %w", err)
	}

	var fileMap map[string][]string
	if raw := r.FormValue("map"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fileMap); err != nil {
			return graph.Request{}, fmt.Errorf("invalid map field: %w", err)
		}
	}

	for key, paths := range fileMap {
		upload, err := readUpload(r, key)
		if err != nil {
			return graph.Request{}, err
		}
		for _, path := range paths {
			if err := setVariable(&req, path, upload); err != nil {
				return graph.Request{}, err
			}
		}
	}
	return req, nil
}

func readUpload(r *http.Request, key string) (*services.Upload, error) {
	file, header, err := r.FormFile(key)
	if err != nil {
		return nil, fmt.Errorf("file %q missing: %w", key, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", key, err)
	}
	return &services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

var errBadPath = errors.New("invalid file map path")

// setVariable places upload at a dotted path such as
// "variables.info.profileImage" or "variables.files.0".
func setVariable(req *graph.Request, path string, upload *services.Upload) error {
	parts := strings.Split(path, ".")
	if len(parts) < 2 || parts[0] != "variables" {
		return fmt.Errorf("%w: %s", errBadPath, path)
	}
	if req.Variables == nil {
		req.Variables = map[string]interface{}{}
	}

	var node interface{} = req.Variables
	for i, part := range parts[1:] {
		last := i == len(parts)-2
		switch container := node.(type) {
		case map[string]interface{}:
			if last {
				container[part] = upload
				return nil
			}
			next, ok := container[part]
			if !ok || next == nil {
				next = map[string]interface{}{}
				container[part] = next
			}
			node = next
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(container) {
				return fmt.Errorf("%w: %s", errBadPath, path)
			}
			if last {
				container[idx] = upload
				return nil
			}
			node = container[idx]
		default:
			return fmt.Errorf("%w: %s", errBadPath, path)
		}
	}
	return nil
}

func isMutation(req graph.Request) bool {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return false
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if req.OperationName != "" && (op.Name == nil || op.Name.Value != req.OperationName) {
			continue
		}
		if op.Operation == ast.OperationTypeMutation {
			return true
		}
	}
	return false
}

func writeRequestError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{
			{"message": message, "extensions": map[string]interface{}{"code": "BAD_REQUEST"}},
		},
	})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
