package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/archive"
	"github.com/relaycore/report-relay/internal/clock"
	"github.com/relaycore/report-relay/internal/download"
	"github.com/relaycore/report-relay/internal/engine"
	"github.com/relaycore/report-relay/internal/metrics"
	"github.com/relaycore/report-relay/internal/publisher"
	"github.com/relaycore/report-relay/internal/relay"
	"github.com/relaycore/report-relay/internal/resolver"
	"github.com/relaycore/report-relay/internal/store"
)

// Lifecycle provisions and tears down the browsing resources for one run.
// Release must be idempotent and must tolerate a nil session.
type Lifecycle interface {
	CreateWorkingArea(runID string) (string, error)
	OpenSession(ctx context.Context, workdir string) (download.Session, error)
	Release(session download.Session, workdir string)
}

// MessageSource resolves a message id into its full upstream representation.
type MessageSource interface {
	Resolve(ctx context.Context, messageID string) (resolver.Message, error)
}

// Downloader drives a session until an artifact lands in the working area.
type Downloader interface {
	Download(ctx context.Context, session download.Session, url string) (engine.Artifact, error)
}

// Relayer routes an artifact by filename and uploads it to the chosen target.
type Relayer interface {
	Determine(fileName string) (relay.Target, error)
	Send(ctx context.Context, target relay.Target, up relay.Upload) (int, error)
}

// Hasher fingerprints artifact bytes for the upload checksum header.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Orchestrator executes the run state machine.
type Orchestrator struct {
	lifecycle Lifecycle
	source    MessageSource
	loader    Downloader
	relayer   Relayer
	runs      store.Store
	events    publisher.Publisher
	artifacts archive.Store
	hasher    Hasher
	clock     clock.Clock
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	lifecycle Lifecycle,
	source MessageSource,
	loader Downloader,
	relayer Relayer,
	runs store.Store,
	events publisher.Publisher,
	artifacts archive.Store,
	hasher Hasher,
	clk clock.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if artifacts == nil {
		artifacts = archive.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lifecycle: lifecycle,
		source:    source,
		loader:    loader,
		relayer:   relayer,
		runs:      runs,
		events:    events,
		artifacts: artifacts,
		hasher:    hasher,
		clock:     clk,
		logger:    logger,
	}
}

// Execute moves one run through the full state machine. It never returns an
// error: every outcome ends in a persisted terminal state.
func (o *Orchestrator) Execute(ctx context.Context, runID string, ev Event) {
	metrics.RunStarted()
	defer metrics.RunFinished()

	run := store.Run{
		ID:             runID,
		MessageID:      ev.MessageID,
		ConversationID: ev.ConversationID,
		State:          StateReceived,
		StartedAt:      o.clock.Now(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		o.logger.Error("create run record failed", zap.String("run_id", runID), zap.Error(err))
	}

	run.State = StateResolving
	o.persist(ctx, run)

	msg, err := o.source.Resolve(ctx, ev.MessageID)
	if err != nil {
		o.finish(ctx, run, fmt.Errorf("resolve message: %w", err))
		return
	}
	if msg.ConversationID != "" {
		run.ConversationID = msg.ConversationID
	}

	url, err := resolver.ExtractURL(msg)
	if err != nil {
		o.finish(ctx, run, err)
		return
	}

	run.State = StateDownloading
	o.persist(ctx, run)

	workdir, err := o.lifecycle.CreateWorkingArea(runID)
	if err != nil {
		o.finish(ctx, run, fmt.Errorf("create working area: %w", err))
		return
	}

	var session download.Session
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		run.State = StateCleaningUp
		o.persist(ctx, run)
		o.lifecycle.Release(session, workdir)
	}
	defer release()

	// Failures past this point release the working area before the terminal
	// transition so the record always shows cleanup happened.
	fail := func(err error) {
		release()
		o.finish(ctx, run, err)
	}

	session, err = o.lifecycle.OpenSession(ctx, workdir)
	if err != nil {
		fail(fmt.Errorf("open session: %w", err))
		return
	}

	artifact, err := o.loader.Download(ctx, session, url)
	if err != nil {
		fail(err)
		return
	}
	run.FileName = artifact.SuggestedName

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		fail(fmt.Errorf("read artifact: %w", err))
		return
	}

	run.State = StateRelaying
	o.persist(ctx, run)

	target, err := o.relayer.Determine(artifact.SuggestedName)
	if err != nil {
		fail(err)
		return
	}
	run.TargetLabel = target.Label

	checksum, err := o.hasher.Hash(data)
	if err != nil {
		fail(fmt.Errorf("hash artifact: %w", err))
		return
	}

	status, err := o.relayer.Send(ctx, target, relay.Upload{
		FileName:       artifact.SuggestedName,
		Data:           data,
		ConversationID: run.ConversationID,
		MessageID:      run.MessageID,
		Checksum:       checksum,
	})
	if err != nil {
		fail(err)
		return
	}
	run.UploadStatus = status

	o.archiveArtifact(ctx, run, data, checksum)

	release()
	o.finish(ctx, run, nil)
}

// persist records a state transition. Store failures are logged, never fatal:
// the run itself keeps moving.
func (o *Orchestrator) persist(ctx context.Context, run store.Run) {
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		o.logger.Error("update run record failed",
			zap.String("run_id", run.ID),
			zap.String("state", run.State),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) archiveArtifact(ctx context.Context, run store.Run, data []byte, checksum string) {
	key := run.ID + "/" + run.FileName
	location, err := o.artifacts.Save(ctx, key, data, map[string]string{
		"run_id":     run.ID,
		"message_id": run.MessageID,
		"target":     run.TargetLabel,
		"sha256":     checksum,
	})
	if err != nil {
		o.logger.Warn("artifact archive failed", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	if location != "" {
		o.logger.Info("artifact archived", zap.String("run_id", run.ID), zap.String("location", location))
	}
}

func (o *Orchestrator) finish(ctx context.Context, run store.Run, runErr error) {
	run.FinishedAt = o.clock.Now()
	if runErr != nil {
		run.State = StateFailed
		run.Error = runErr.Error()
		o.logger.Error("run failed",
			zap.String("run_id", run.ID),
			zap.String("message_id", run.MessageID),
			zap.Error(runErr),
		)
	} else {
		run.State = StateSucceeded
		o.logger.Info("run succeeded",
			zap.String("run_id", run.ID),
			zap.String("message_id", run.MessageID),
			zap.String("file_name", run.FileName),
			zap.String("target", run.TargetLabel),
			zap.Int("upload_status", run.UploadStatus),
		)
	}
	o.persist(ctx, run)
	metrics.RecordRun(run.State)
	metrics.ObserveRunDuration(run.FinishedAt.Sub(run.StartedAt))
	o.publish(ctx, run)
}

// publish emits the terminal run event. Delivery is best-effort.
func (o *Orchestrator) publish(ctx context.Context, run store.Run) {
	if o.events == nil {
		return
	}
	_, err := o.events.Publish(ctx, publisher.RunEvent{
		RunID:          run.ID,
		MessageID:      run.MessageID,
		ConversationID: run.ConversationID,
		State:          run.State,
		Error:          run.Error,
		FileName:       run.FileName,
		TargetLabel:    run.TargetLabel,
		FinishedAt:     run.FinishedAt,
	})
	if err != nil {
		o.logger.Warn("run event publish failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
