// Package generation implements the llm-generation job's 9-step
// lifecycle, per spec.md §4.8: dependency wait, preprocessing-output
// merge, config resolution, reasoning-model adaptation, prompt assembly,
// model invocation, output validation with retry, memory persistence,
// and result publication.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/divinesense/internal/configresolver"
	"github.com/hrygo/divinesense/internal/embedding"
	"github.com/hrygo/divinesense/internal/llmclient"
	"github.com/hrygo/divinesense/internal/memorystore"
	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/promptctx"
)

// maxValidationAttempts bounds the empty/duplicate retry loop of step 7,
// per spec.md §4.8 ("up to 3 total attempts").
const maxValidationAttempts = 3

// dependencyWaitTimeout bounds the cumulative time spent fetching
// preprocessing results before giving up on the remaining ones, per
// spec.md §4.8 step 1 ("Timeout sums to a per-job cap").
const dependencyWaitTimeout = 15 * time.Second

// JobProvider looks a job up by id, letting the in-process Scheduler
// pass only jobIDs to Execute.
type JobProvider interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
}

// ResultReader fetches a stored job/dependency result by key.
type ResultReader interface {
	GetResult(ctx context.Context, key string) (*model.JobResult, error)
}

// ResultWriter persists the final generation result under jobID, per
// spec.md §4.8 step 9.
type ResultWriter interface {
	WriteResult(ctx context.Context, jobID string, body any) error
}

// JobTracker records a job's lifecycle state so sweep.go can find jobs
// stuck in active past a deadline, per spec.md §7.
type JobTracker interface {
	TrackActive(ctx context.Context, jobID, requestID string, jobType model.JobType) error
	TrackTerminal(ctx context.Context, jobID, requestID string, jobType model.JobType, state model.JobState) error
}

// ConfigResolverClient resolves cascading LLM config for a request.
type ConfigResolverClient interface {
	Resolve(ctx context.Context, q configresolver.Query) (model.ResolvedConfig, error)
}

// ChatClient invokes the model, per internal/llmclient.
type ChatClient interface {
	Chat(ctx context.Context, params llmclient.ChatParams) (*llmclient.ChatResult, error)
}

// MemoryAdder persists the completed turn into long-term memory, per
// internal/memorystore.
type MemoryAdder interface {
	AddMemory(ctx context.Context, req memorystore.AddMemoryRequest) (string, error)
}

// MemoryQuerier retrieves the ranked memories §4.7 feeds to the prompt
// assembler.
type MemoryQuerier interface {
	Query(ctx context.Context, text string, opts model.MemoryQueryOptions, sessionID string) ([]model.ScoredMemory, error)
}

// ResultPublisher announces a completed job on the result stream, per
// spec.md §6.
type ResultPublisher interface {
	PublishResult(ctx context.Context, jobID string, result model.LLMGenerationResult) error
}

// Worker executes llm-generation jobs. It implements
// internal/jobplan.Executor.
type Worker struct {
	jobs       JobProvider
	results    ResultReader
	resultW    ResultWriter
	tracker    JobTracker
	resolver   ConfigResolverClient
	assembler  *promptctx.Assembler
	classifier *Classifier
	chat       ChatClient
	memory     MemoryAdder
	memQuery   MemoryQuerier
	embedder   Embedder
	publisher  ResultPublisher
	modelName  string

	windowsMu sync.Mutex
	windows   map[string]*embedding.DuplicateWindow
}

// Config bundles Worker's collaborators.
type Config struct {
	Jobs       JobProvider
	Results    ResultReader
	ResultW    ResultWriter
	Tracker    JobTracker
	Resolver   ConfigResolverClient
	Assembler  *promptctx.Assembler
	Classifier *Classifier
	Chat       ChatClient
	Memory     MemoryAdder
	MemQuery   MemoryQuerier
	Embedder   Embedder
	Publisher  ResultPublisher
	ModelName  string
}

// New builds a Worker.
func New(cfg Config) *Worker {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Worker{
		jobs:       cfg.Jobs,
		results:    cfg.Results,
		resultW:    cfg.ResultW,
		tracker:    cfg.Tracker,
		resolver:   cfg.Resolver,
		assembler:  cfg.Assembler,
		classifier: classifier,
		chat:       cfg.Chat,
		memory:     cfg.Memory,
		memQuery:   cfg.MemQuery,
		embedder:   cfg.Embedder,
		publisher:  cfg.Publisher,
		modelName:  cfg.ModelName,
		windows:    make(map[string]*embedding.DuplicateWindow),
	}
}

// windowFor returns userID's sliding duplicate-detection window,
// creating one on first use.
func (w *Worker) windowFor(userID string) *embedding.DuplicateWindow {
	w.windowsMu.Lock()
	defer w.windowsMu.Unlock()
	win, ok := w.windows[userID]
	if !ok {
		win = embedding.NewDuplicateWindow()
		w.windows[userID] = win
	}
	return win
}

// Execute runs one llm-generation job's full lifecycle. It never returns
// an error to the scheduler for anything short of an unrecoverable
// infrastructure failure (job/request lookup) — content and validation
// failures are written into the result record itself, per spec.md §7's
// "never throw past the job boundary" policy.
func (w *Worker) Execute(ctx context.Context, jobID string) error {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("generation: load job %s: %w", jobID, err)
	}

	req, ok := job.Data["request"].(*model.Request)
	if !ok || req == nil {
		return fmt.Errorf("generation: job %s has no attached request", jobID)
	}

	logger := slog.With("request_id", req.RequestID, "job_id", jobID)

	if w.tracker != nil {
		if err := w.tracker.TrackActive(ctx, jobID, req.RequestID, model.JobTypeLLMGeneration); err != nil {
			logger.Warn("generation: failed to record active state", "err", err)
		}
	}

	// Step 1-2: await dependencies and merge their outputs.
	attachmentDescriptions := w.collectDependencies(ctx, job, logger)

	result := w.runGeneration(ctx, req, attachmentDescriptions, logger)

	terminal := model.JobStateCompleted
	if !result.Success {
		terminal = model.JobStateFailed
	}
	if w.tracker != nil {
		if err := w.tracker.TrackTerminal(ctx, jobID, req.RequestID, model.JobTypeLLMGeneration, terminal); err != nil {
			logger.Warn("generation: failed to record terminal state", "err", err)
		}
	}

	if err := w.resultW.WriteResult(ctx, jobID, result); err != nil {
		logger.Error("generation: failed to write result", "err", err)
		return fmt.Errorf("generation: write result: %w", err)
	}
	if w.publisher != nil {
		if err := w.publisher.PublishResult(ctx, jobID, result); err != nil {
			logger.Error("generation: failed to publish result", "err", err)
		}
	}
	return nil
}

func (w *Worker) collectDependencies(ctx context.Context, job *model.Job, logger *slog.Logger) string {
	if len(job.Dependencies) == 0 {
		return ""
	}

	waitCtx, cancel := context.WithTimeout(ctx, dependencyWaitTimeout)
	defer cancel()

	outcomes := make([]dependencyOutcome, 0, len(job.Dependencies))
	for _, dep := range job.Dependencies {
		jr, err := w.results.GetResult(waitCtx, dep.ResultKey)
		if err != nil || jr == nil {
			logger.Warn("generation: dependency result unavailable, omitting", "result_key", dep.ResultKey, "err", err)
			continue
		}
		outcomes = append(outcomes, decodeDependencyResult(dep.Type, jr.Body))
	}

	return mergePreprocessingOutputs(outcomes)
}

// runGeneration executes steps 3-8, returning a fully-formed result
// regardless of outcome.
func (w *Worker) runGeneration(ctx context.Context, req *model.Request, attachmentDescriptions string, logger *slog.Logger) model.LLMGenerationResult {
	// Step 3: resolve config.
	resolved, err := w.resolver.Resolve(ctx, configresolver.Query{
		UserID:        req.UserID,
		ChannelID:     req.ChannelID,
		PersonalityID: req.Personality.Name,
	})
	if err != nil {
		logger.Error("generation: config resolve failed, using personality defaults", "err", err)
	}

	var memories []model.ScoredMemory
	if w.memQuery != nil {
		queryOpts := model.DefaultMemoryQueryOptions()
		queryOpts.PersonaID = req.UserID
		queryOpts.PersonalityID = req.Personality.Name
		queryOpts.AllowedScopes = []model.CanonScope{model.CanonScopeGlobal, model.CanonScopePersonal, model.CanonScopeSession}
		if req.ChannelID != "" {
			queryOpts.ChannelIDs = []string{req.ChannelID}
		}

		var err error
		memories, err = w.memQuery.Query(ctx, req.Message.Text, queryOpts, req.SessionID)
		if err != nil {
			logger.Warn("generation: memory query failed, continuing without memories", "err", err)
		}
	}

	// Step 5: assemble the prompt (reference resolution happens inside
	// the assembler when a UserDirectory is configured).
	assembled := w.assembler.Assemble(promptctx.AssembleRequest{
		Personality:            req.Personality,
		UserMessage:            req.Message.Text,
		AttachmentDescriptions: attachmentDescriptions,
		UserID:                 req.UserID,
		PersonaID:              req.UserID,
		PersonaDisplayName:     req.UserID,
		ChannelID:              req.ChannelID,
		SessionID:              req.SessionID,
		ReferencedMessages:     req.ReferencedMessages,
		Memories:               memories,
		History:                convertHistory(req.ConversationHistory),
		CrossChannel:           convertCrossChannel(req.CrossChannelHistory),
	})

	// Step 4: reasoning-model adaptation.
	kind := w.classifier.Classify(w.modelName)
	baseTemp := req.Personality.Temperature
	adapted := Adapt(assembled.Messages, kind, &baseTemp)

	window := w.windowFor(req.UserID)

	var content string
	var usage llmclient.Usage
	var lastErr error

	for attempt := 1; attempt <= maxValidationAttempts; attempt++ {
		// Step 6: invoke the model.
		chatResult, err := w.chat.Chat(ctx, llmclient.ChatParams{
			Model:       w.modelName,
			Messages:    adapted.Messages,
			Temperature: adapted.Temperature,
			MaxTokens:   req.Personality.MaxTokens,
			TopP:        resolved.Config.TopP,
			Stop:        resolved.Config.Stop,
			Seed:        resolved.Config.Seed,
		})
		if err != nil {
			lastErr = err
			logger.Warn("generation: chat call failed", "attempt", attempt, "err", err)
			continue
		}
		usage = chatResult.Usage

		// Step 7: validate output.
		outcome, err := Validate(ctx, chatResult.Content, w.embedder, window)
		if err != nil {
			lastErr = err
			logger.Warn("generation: validation embed failed", "attempt", attempt, "err", err)
			continue
		}
		if outcome.Empty {
			lastErr = fmt.Errorf("empty content after stripping thinking tags")
			logger.Warn("generation: empty output, retrying", "attempt", attempt)
			continue
		}
		if outcome.Duplicate {
			lastErr = fmt.Errorf("duplicate output (similarity %.4f)", outcome.DuplicateScore)
			logger.Warn("generation: duplicate output, retrying", "attempt", attempt, "score", outcome.DuplicateScore)
			continue
		}

		content = outcome.Stripped
		lastErr = nil
		break
	}

	if content == "" {
		errMsg := "generation failed"
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
		return model.LLMGenerationResult{
			RequestID:              req.RequestID,
			Success:                false,
			Error:                  errMsg,
			AttachmentDescriptions: attachmentDescriptions,
			Metadata:               usageMetadata(usage),
		}
	}

	// Step 8: persist memory. A write failure never fails the job — the
	// outbox inside memorystore.AddMemory retries it independently.
	if err := w.persistMemory(ctx, req, content); err != nil {
		logger.Error("generation: memory persistence failed", "err", err)
	}

	return model.LLMGenerationResult{
		RequestID:              req.RequestID,
		Success:                true,
		Content:                content,
		AttachmentDescriptions: attachmentDescriptions,
		Metadata:               usageMetadata(usage),
	}
}

func (w *Worker) persistMemory(ctx context.Context, req *model.Request, response string) error {
	turnText := fmt.Sprintf("%s: %s\n%s: %s", req.UserID, req.Message.Text, req.Personality.Name, response)

	canonScope := model.CanonScopePersonal
	if req.SessionID != "" {
		canonScope = model.CanonScopeSession
	}

	addReq := memorystore.AddMemoryRequest{
		PersonaID:     req.UserID,
		PersonalityID: req.Personality.Name,
		Content:       turnText,
		CanonScope:    canonScope,
		SummaryType:   "turn",
	}
	if req.ChannelID != "" {
		addReq.ChannelID = &req.ChannelID
	}
	if req.SessionID != "" {
		addReq.SessionID = &req.SessionID
	}

	_, err := w.memory.AddMemory(ctx, addReq)
	return err
}

// convertHistory maps the wire-level conversation history onto the
// assembler's internal shape. internal/model cannot import
// internal/promptctx (see its package doc), so the two types are kept
// separate and converted here, at the one place that already imports
// both.
func convertHistory(in []model.ConversationHistoryMessage) []promptctx.HistoryMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]promptctx.HistoryMessage, len(in))
	for i, m := range in {
		out[i] = promptctx.HistoryMessage{
			Timestamp: m.Timestamp,
			PersonaID: m.PersonaID,
			Author:    m.Author,
			Content:   m.Content,
			FromSelf:  m.FromSelf,
		}
	}
	return out
}

func convertCrossChannel(in []model.ChannelHistoryGroup) []promptctx.ChannelHistoryGroup {
	if len(in) == 0 {
		return nil
	}
	out := make([]promptctx.ChannelHistoryGroup, len(in))
	for i, g := range in {
		out[i] = promptctx.ChannelHistoryGroup{
			ChannelEnvironment: g.ChannelEnvironment,
			Messages:           convertHistory(g.Messages),
		}
	}
	return out
}

func usageMetadata(u llmclient.Usage) map[string]any {
	return map[string]any{
		"promptTokens":     u.PromptTokens,
		"completionTokens": u.CompletionTokens,
		"totalTokens":      u.TotalTokens,
	}
}
