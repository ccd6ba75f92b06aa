// Package mcp exposes beat review over the Model Context Protocol so that
// agents can inspect beats, read the classification table and record
// overrides.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"os"
	"strings"
	"sync"

	"github.com/alpkeskin/gotoon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/recording"
	"github.com/ViVse/ecg-v2/review"
	"github.com/ViVse/ecg-v2/store"
	"github.com/ViVse/ecg-v2/table"
)

const serverName = "ecgreview"

// Server is the MCP server for beat review.
type Server struct {
	mcpServer   *server.MCPServer
	projectRoot string
	cfg         *config.Config
	store       store.OverrideStore

	// Sessions are single-threaded; mu serializes every tool call that
	// touches one.
	mu       sync.Mutex
	sessions map[string]*reviewEntry
}

type reviewEntry struct {
	session     *review.Session
	recordingID string
	stamps      [2]fileStamp
}

// fileStamp identifies one version of a file on disk. A missing file has
// the zero stamp.
type fileStamp struct {
	modTime int64
	size    int64
}

func stampOf(path string) fileStamp {
	if path == "" {
		return fileStamp{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
}

// NewServer creates an MCP server for projectRoot using its config and
// override store.
func NewServer(ctx context.Context, projectRoot, version string) (*Server, error) {
	cfg := config.DefaultConfig()
	if config.Exists(projectRoot) {
		loaded, err := config.Load(projectRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}
	st, err := store.Open(ctx, cfg, projectRoot)
	if err != nil {
		return nil, err
	}
	s := newServer(projectRoot, cfg, st, version)
	return s, nil
}

func newServer(projectRoot string, cfg *config.Config, st store.OverrideStore, version string) *Server {
	s := &Server{
		projectRoot: projectRoot,
		cfg:         cfg,
		store:       st,
		sessions:    make(map[string]*reviewEntry),
	}
	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Serve runs the server over stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// Close releases every review session and the store.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.sessions {
		e.session.Close()
		delete(s.sessions, key)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Server) registerTools() {
	formatOpt := mcp.WithString("format",
		mcp.Description("Output format: json (default) or toon"),
		mcp.Enum("json", "toon"),
	)
	recordingOpt := mcp.WithString("recording",
		mcp.Required(),
		mcp.Description("Path to the recording JSON (ecg_clean and p/q/r/s/t_peaks arrays)"),
	)
	predictionsOpt := mcp.WithString("predictions",
		mcp.Description("Optional path to a predictions JSON array; predictions embedded in the recording are used otherwise"),
	)

	s.mcpServer.AddTool(mcp.NewTool("ecg_beats",
		mcp.WithDescription("List the beats of a recording: ordinal, R sample index, amplitude and the P/Q/S/T amplitudes found at the same sample."),
		recordingOpt,
		predictionsOpt,
		formatOpt,
	), s.handleBeats)

	s.mcpServer.AddTool(mcp.NewTool("ecg_table",
		mcp.WithDescription("Return the classification table: the Overall row followed by one row per beat with S/V/F/Q cells."),
		recordingOpt,
		predictionsOpt,
		mcp.WithString("sort",
			mcp.Description("Column to sort by"),
			mcp.Enum("id", "isNormal", "S", "V", "F", "Q"),
		),
		mcp.WithBoolean("desc",
			mcp.Description("Sort descending"),
		),
		formatOpt,
	), s.handleTable)

	s.mcpServer.AddTool(mcp.NewTool("ecg_markers",
		mcp.WithDescription("Return the beat markers and drawable series with their colors for the current view state."),
		recordingOpt,
		predictionsOpt,
		mcp.WithString("selection",
			mcp.Description("Marker label to select, e.g. R3"),
		),
		mcp.WithString("hide_peaks",
			mcp.Description("Peak series to hide, any of P, Q, S, T (e.g. \"PT\")"),
		),
		formatOpt,
	), s.handleMarkers)

	s.mcpServer.AddTool(mcp.NewTool("ecg_update_prediction",
		mcp.WithDescription("Override the classification of one beat. Anomalous beats need a class (S, V, F or Q)."),
		recordingOpt,
		predictionsOpt,
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Beat id (ordinal). The Overall row cannot be edited."),
		),
		mcp.WithBoolean("is_anomaly",
			mcp.Required(),
			mcp.Description("Whether the beat is anomalous"),
		),
		mcp.WithString("classification",
			mcp.Description("Anomaly class when is_anomaly is true"),
			mcp.Enum("S", "V", "F", "Q"),
		),
		formatOpt,
	), s.handleUpdatePrediction)
}

func (s *Server) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || s.projectRoot == "" {
		return p
	}
	return filepath.Join(s.projectRoot, p)
}

// entry returns the session for a recording, loading it on first use and
// again whenever the recording or predictions file changed on disk. Stored
// overrides are replayed on every load. Callers hold s.mu.
func (s *Server) entry(ctx context.Context, recordingPath, predictionsPath string) (*reviewEntry, error) {
	recordingPath = s.resolvePath(recordingPath)
	predictionsPath = s.resolvePath(predictionsPath)
	key := recordingPath + "\x00" + predictionsPath
	stamps := [2]fileStamp{stampOf(recordingPath), stampOf(predictionsPath)}
	if e, ok := s.sessions[key]; ok {
		if e.stamps == stamps {
			return e, nil
		}
		log.Printf("Reloading %s: file changed on disk", recordingPath)
		e.session.Close()
		delete(s.sessions, key)
	}

	rec, err := recording.Load(ctx, recordingPath, predictionsPath)
	if err != nil {
		return nil, err
	}
	e := &reviewEntry{recordingID: rec.ID, stamps: stamps}
	sess, err := review.NewSession(review.Options{
		Capabilities: review.Capabilities{Editing: s.cfg.Editing.Enabled && s.store != nil},
		OnUpdate: func(o ecg.Override) error {
			_, err := s.store.SaveOverride(context.Background(), e.recordingID, o)
			return err
		},
		Palette:   s.cfg.Display.Palette,
		Peaks:     s.cfg.Display.Peaks,
		MinWindow: s.cfg.Display.MinWindow,
	})
	if err != nil {
		return nil, err
	}

	ix, _ := ecg.Index(rec.Signal)
	preds, _, err := store.ReplayStored(ctx, s.store, rec.ID, rec.Predictions, len(ix.Beats))
	if err != nil {
		log.Printf("Warning: failed to replay overrides for %s: %v", rec.ID, err)
	}
	if err := sess.Load(rec.ID, rec.Signal, preds); err != nil {
		return nil, err
	}
	e.session = sess
	s.sessions[key] = e
	return e, nil
}

// UpdateOutput is the ecg_update_prediction result.
type UpdateOutput struct {
	Recording string         `json:"recording"`
	Override  ecg.Override   `json:"override"`
	Aggregate ecg.Prediction `json:"aggregate"`
}

func (s *Server) handleBeats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("recording")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(ctx, path, request.GetString("predictions", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load recording: %v", err)), nil
	}
	return s.result(e.session.BeatsReport(), request.GetString("format", s.cfg.MCP.Format))
}

func (s *Server) handleTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("recording")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(ctx, path, request.GetString("predictions", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load recording: %v", err)), nil
	}
	sorting := review.ColumnSort{
		Column: table.ColumnID(request.GetString("sort", string(table.ColumnRowID))),
		Desc:   request.GetBool("desc", false),
	}
	e.session.SortBy(sorting)
	return s.result(e.session.TableReport(), request.GetString("format", s.cfg.MCP.Format))
}

func (s *Server) handleMarkers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("recording")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(ctx, path, request.GetString("predictions", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load recording: %v", err)), nil
	}
	sess := e.session
	if err := sess.Select(request.GetString("selection", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hidden := request.GetString("hide_peaks", "")
	for _, kind := range ecg.PeakKinds {
		sess.SetPeakVisible(kind, !containsKind(hidden, kind))
	}
	return s.result(sess.MarkersReport(), request.GetString("format", s.cfg.MCP.Format))
}

func containsKind(list string, kind ecg.PeakKind) bool {
	return strings.Contains(strings.ToUpper(list), string(kind))
}

func (s *Server) handleUpdatePrediction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("recording")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	isAnomaly, err := request.RequireBool("is_anomaly")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(ctx, path, request.GetString("predictions", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load recording: %v", err)), nil
	}
	o, err := applyEdit(e.session, id, isAnomaly, request.GetString("classification", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	agg, _ := e.session.Predictions().Aggregate()
	return s.result(UpdateOutput{Recording: e.recordingID, Override: o, Aggregate: agg},
		request.GetString("format", s.cfg.MCP.Format))
}

// applyEdit runs one override through the editor so that tool calls obey
// the same rules as the interactive dialog.
func applyEdit(sess *review.Session, id string, isAnomaly bool, class string) (ecg.Override, error) {
	ed, err := sess.OpenEditor(id)
	if err != nil {
		return ecg.Override{}, err
	}
	ed.SetAnomaly(isAnomaly)
	if isAnomaly {
		if class == "" {
			sess.CancelEditor()
			return ecg.Override{}, fmt.Errorf("classification is required when is_anomaly is true")
		}
		c, err := ecg.ParseAnomalyClass(class)
		if err == nil {
			err = ed.SelectClass(c)
		}
		if err != nil {
			sess.CancelEditor()
			return ecg.Override{}, err
		}
	}
	o, err := sess.SaveEditor()
	if err != nil {
		sess.CancelEditor()
		return ecg.Override{}, err
	}
	return o, nil
}

func (s *Server) result(data any, format string) (*mcp.CallToolResult, error) {
	output, err := encodeOutput(data, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// encodeOutput renders data as indented JSON or TOON.
func encodeOutput(data any, format string) (string, error) {
	if format == "toon" {
		return gotoon.Encode(data)
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}
