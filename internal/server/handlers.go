package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/report"
	"example.com/siwegate/internal/rules"
	"example.com/siwegate/internal/siwe"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 8 << 20

// messageInput is embedded by requests that carry a single message, either
// inline or as the id of an uploaded artifact.
type messageInput struct {
	Message *string `json:"message"`
	Input   string  `json:"input"`
}

func (s *Server) resolveMessage(in messageInput) (string, error) {
	if in.Message != nil {
		return *in.Message, nil
	}
	if strings.TrimSpace(in.Input) == "" {
		return "", errors.New("message or input required")
	}
	return s.readArtifact(in.Input)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		messageInput
		Profile string `json:"profile"`
		AutoFix bool   `json:"autoFix"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req.messageInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := s.config(req.Profile, req.AutoFix)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := s.engine.Validate(msg, cfg)
	s.logger.Debug("validated message",
		zap.String("profile", res.Profile),
		zap.Bool("valid", res.IsValid),
		zap.Int("errors", len(res.Errors)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuickValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req messageInput
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.QuickValidate(msg))
}

func (s *Server) handleValidateField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		messageInput
		Field string `json:"field"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req.messageInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	diags, err := s.engine.ValidateField(msg, req.Field)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := struct {
		Field       string                 `json:"field"`
		Diagnostics []siwe.ValidationError `json:"diagnostics"`
	}{Field: req.Field, Diagnostics: diags}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAutoFix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		messageInput
		Profile  string `json:"profile"`
		Targeted bool   `json:"targeted"`
		DryRun   bool   `json:"dryRun"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req.messageInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := s.config(req.Profile, !req.Targeted)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		fixed   string
		applied []rules.AppliedFix
		final   rules.ValidationResult
	)
	if req.Targeted {
		fixed, applied, final = s.engine.TargetedFix(msg, cfg)
	} else {
		res := s.engine.Validate(msg, cfg)
		fixed, applied = msg, res.AppliedFixes
		if res.FixedMessage != "" {
			fixed = res.FixedMessage
		}
		cfg.AutoFix = false
		final = s.engine.Validate(fixed, cfg)
	}
	if applied == nil {
		applied = []rules.AppliedFix{}
	}

	resp := struct {
		Fixed           bool                   `json:"fixed"`
		Message         string                 `json:"message"`
		AppliedFixes    []rules.AppliedFix     `json:"appliedFixes"`
		RemainingIssues []siwe.ValidationError `json:"remainingIssues"`
		IsValid         bool                   `json:"isValid"`
		Outputs         []ArtifactRef          `json:"outputs,omitempty"`
	}{
		Fixed:           len(applied) > 0,
		Message:         fixed,
		AppliedFixes:    applied,
		RemainingIssues: final.Diagnostics(),
		IsValid:         final.IsValid,
	}
	if !req.DryRun && len(applied) > 0 {
		msgArt, err := s.writeArtifact("fixed-*.txt", "fixed_message.txt", "autofix", []byte(fixed))
		if err != nil {
			http.Error(w, fmt.Sprintf("store fixed message: %v", err), http.StatusInternalServerError)
			return
		}
		auditArt, err := s.writeAudit(common.Sha256String(msg), applied)
		if err != nil {
			http.Error(w, fmt.Sprintf("store audit log: %v", err), http.StatusInternalServerError)
			return
		}
		resp.Outputs = []ArtifactRef{msgArt.Ref(), auditArt.Ref()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAudit stores applied fixes as a JSONL patch log artifact.
func (s *Server) writeAudit(sum string, applied []rules.AppliedFix) (Artifact, error) {
	path, err := s.tempPath("audit-*.jsonl")
	if err != nil {
		return Artifact{}, err
	}
	if err := common.NewPatchLog(path).AppendRun(sum, s.now(), rules.AuditEntries(applied)...); err != nil {
		return Artifact{}, err
	}
	return s.addArtifact(path, "fix_audit.jsonl", "application/x-ndjson", "audit")
}

type fieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		messageInput
		Set             []fieldValue `json:"set"`
		Remove          []string     `json:"remove"`
		AddResources    []string     `json:"addResources"`
		RemoveResources []string     `json:"removeResources"`
		FixLineBreaks   bool         `json:"fixLineBreaks"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req.messageInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	repl := s.engine.Replacer()
	for _, fv := range req.Set {
		if msg, err = repl.ReplaceField(msg, fv.Field, fv.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	for _, name := range req.Remove {
		if msg, err = repl.RemoveField(msg, name); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	for _, uri := range req.AddResources {
		if msg, err = repl.AddResource(msg, uri); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	missing := []string{}
	for _, uri := range req.RemoveResources {
		var removed bool
		if msg, removed = repl.RemoveResource(msg, uri); !removed {
			missing = append(missing, uri)
		}
	}
	if req.FixLineBreaks {
		msg = repl.FixLineBreaks(msg)
	}
	resp := struct {
		Message          string   `json:"message"`
		MissingResources []string `json:"missingResources,omitempty"`
	}{Message: msg, MissingResources: missing}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var overrides siwe.Fields
	if !decodeJSON(w, r, &overrides) {
		return
	}
	if overrides.Address != "" {
		addr, ok := siwe.RepairAddress(overrides.Address)
		if !ok {
			http.Error(w, fmt.Sprintf("address %q is not a valid Ethereum address", overrides.Address), http.StatusBadRequest)
			return
		}
		overrides.Address = addr
	}
	msg, err := s.engine.Fixer().GenerateTemplate(overrides)
	if errors.Is(err, siwe.ErrLineBreak) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("generate template: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Message string `json:"message"`
	}{Message: msg}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		messageInput
		Profile string `json:"profile"`
		Lang    string `json:"lang"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.resolveMessage(req.messageInput)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := s.config(req.Profile, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := s.lang
	if req.Lang != "" {
		if lang, err = report.ParseLanguage(req.Lang); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	rep := rules.ExportReport(s.engine.Validate(msg, cfg))

	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("report temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveReportJSON(rep, jsonPath); err != nil {
		http.Error(w, fmt.Sprintf("write report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("report pdf temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveReportPDF(rep, pdfPath, lang); err != nil {
		http.Error(w, fmt.Sprintf("write report pdf: %v", err), http.StatusInternalServerError)
		return
	}
	jsonArt, err := s.addArtifact(jsonPath, "validation_report.json", "application/json", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, "validation_report.pdf", "application/pdf", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Report    rules.Report  `json:"report"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}{
		Report:    rep,
		Artifacts: []ArtifactRef{jsonArt.Ref(), pdfArt.Ref()},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type profileInfo struct {
		Name           string `json:"name"`
		SecurityChecks bool   `json:"securityChecks"`
		Rules          int    `json:"rules"`
		Default        bool   `json:"default,omitempty"`
	}
	names := s.profiles.Names()
	out := make([]profileInfo, 0, len(names))
	for _, name := range names {
		p, _ := s.profiles.Lookup(name)
		out = append(out, profileInfo{
			Name:           name,
			SecurityChecks: p.SecurityChecks,
			Rules:          len(p.Rules),
			Default:        name == s.defaultName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.metrics.Snapshot()
	resp := struct {
		Status    string   `json:"status"`
		Profiles  []string `json:"profiles"`
		Validated int64    `json:"validated"`
	}{Status: "ok", Profiles: s.profiles.Names(), Validated: snap.Messages}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.L().Warn("write json response", zap.Error(err))
	}
}
