// Package evidence runs the registry operations: adding evidence, reading it
// back and granting or revoking roles.
//
// Every state-changing operation follows the same order: validate the input,
// upload the file when there is one, make sure the wallet is on the required
// chain, submit the transaction and wait for one confirmation. A failure at
// any step stops the sequence.
package evidence

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ipfs/go-cid"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/pinning"
	"github.com/evidence-registry/evreg/pkg/session"
)

// Operation names a state-changing operation. Each has its own busy flag.
type Operation int

const (
	OpAddEvidence Operation = iota
	OpGrantPolice
	OpGrantCourtOfficial
	OpRevokePolice
	OpRevokeCourtOfficial
	numOperations
)

func (o Operation) String() string {
	switch o {
	case OpAddEvidence:
		return "add_evidence"
	case OpGrantPolice:
		return "grant_police"
	case OpGrantCourtOfficial:
		return "grant_court_official"
	case OpRevokePolice:
		return "revoke_police"
	case OpRevokeCourtOfficial:
		return "revoke_court_official"
	}
	return "unknown"
}

// Stage is reported through a request's progress callback as the sequence advances.
type Stage int

const (
	StageUploaded Stage = iota
	StageNetworkChecked
	StageSubmitted
	StageConfirmed
)

func (s Stage) String() string {
	switch s {
	case StageUploaded:
		return "uploaded"
	case StageNetworkChecked:
		return "network-checked"
	case StageSubmitted:
		return "submitted"
	case StageConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Pinner uploads files and builds their retrieval links.
type Pinner interface {
	Upload(ctx context.Context, name string, r io.Reader) (pinning.Result, error)
	GatewayURL(contentID string) string
}

// Record is an evidence entry read from the contract.
type Record struct {
	ID          uint64         `json:"id"`
	CaseID      string         `json:"caseId"`
	Description string         `json:"description"`
	ContentHash string         `json:"contentHash"`
	Submitter   common.Address `json:"submitter"`
	Timestamp   uint64         `json:"timestamp"`
	GatewayURL  string         `json:"gatewayUrl"`
}

// Time returns the creation time of the record.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC() // #nosec G115
}

// AddRequest describes a new evidence entry. Exactly one of File or CID is set;
// CID anchors content that was pinned earlier without uploading it again.
type AddRequest struct {
	CaseID      string
	Description string
	FileName    string
	File        io.Reader
	CID         string
	Progress    func(Stage)
}

// AddResult is returned once the evidence transaction is confirmed.
type AddResult struct {
	CID         string      `json:"cid"`
	GatewayURL  string      `json:"gatewayUrl"`
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	JournalID   string      `json:"journalId,omitempty"`
}

// RoleResult is returned once a role change is confirmed.
type RoleResult struct {
	Operation   string          `json:"operation"`
	Account     common.Address  `json:"account"`
	TxHash      common.Hash     `json:"txHash"`
	BlockNumber uint64          `json:"blockNumber"`
	Session     session.Session `json:"session"`
}

// Service runs registry operations for the connected session.
type Service struct {
	sessions       *session.Manager
	pinner         Pinner
	journal        *journal.Journal
	metrics        *Metrics
	confirmTimeout time.Duration
	logger         log.Logger

	busy [numOperations]atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records uploads in j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithMetrics replaces the no-op metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConfirmTimeout bounds the wait for a confirmation. Zero waits for as
// long as the caller's context allows.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) { s.confirmTimeout = d }
}

// NewService returns a service acting through sessions.
func NewService(sessions *session.Manager, pinner Pinner, logger log.Logger, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		pinner:   pinner,
		metrics:  NopMetrics(),
		logger:   logger.With("module", "evidence"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether an operation of kind op is running.
func (s *Service) Busy(op Operation) bool {
	return s.busy[op].Load()
}

func (s *Service) acquire(op Operation) error {
	if !s.busy[op].CompareAndSwap(false, true) {
		s.metrics.BusyRejections.With("operation", op.String()).Add(1)
		return fmt.Errorf("%w: %s", ErrBusy, op)
	}
	s.metrics.Submissions.With("operation", op.String()).Add(1)
	return nil
}

func (s *Service) release(op Operation, err error) {
	if err != nil {
		s.metrics.Failures.With("operation", op.String(), "kind", Classify(err).String()).Add(1)
	}
	s.busy[op].Store(false)
}

// AddEvidence uploads the file, then stores its content identifier on chain.
func (s *Service) AddEvidence(ctx context.Context, req AddRequest) (res AddResult, err error) {
	if err := s.acquire(OpAddEvidence); err != nil {
		return AddResult{}, err
	}
	defer func() { s.release(OpAddEvidence, err) }()

	progress := req.Progress
	if progress == nil {
		progress = func(Stage) {}
	}

	caseID := strings.TrimSpace(req.CaseID)
	description := strings.TrimSpace(req.Description)
	if err := validateAdd(caseID, description, req); err != nil {
		return AddResult{}, err
	}
	if _, err := s.sessions.Capabilities(); err != nil {
		return AddResult{}, err
	}

	contentID := strings.TrimSpace(req.CID)
	var entry *journal.PinEntry
	if req.File != nil {
		counter := &countingReader{r: req.File}
		pinned, err := s.pinner.Upload(ctx, req.FileName, counter)
		if err != nil {
			return AddResult{}, err
		}
		contentID = pinned.IpfsHash
		s.metrics.UploadBytes.Add(float64(counter.n))
		entry = s.recordPinned(ctx, contentID, req.FileName, counter.n, caseID)
	} else {
		entry = s.findPinned(ctx, contentID)
	}
	progress(StageUploaded)

	res = AddResult{CID: contentID, GatewayURL: s.pinner.GatewayURL(contentID)}
	if entry != nil {
		res.JournalID = entry.ID.String()
	}

	receipt, err := s.transact(ctx, OpAddEvidence, progress, func(r *contract.Registry, opts *bind.TransactOpts) (*types.Transaction, error) {
		return r.AddEvidence(opts, caseID, description, contentID)
	})
	if err != nil {
		s.markOrphaned(ctx, entry, err)
		return res, err
	}

	res.TxHash = receipt.TxHash
	res.BlockNumber = receipt.BlockNumber.Uint64()
	s.markAnchored(ctx, entry, receipt.TxHash)
	s.logger.Info("evidence added", "case_id", caseID, "cid", contentID, "tx", receipt.TxHash.Hex())
	return res, nil
}

func validateAdd(caseID, description string, req AddRequest) error {
	switch {
	case caseID == "":
		return fmt.Errorf("%w: case id is required", ErrInvalidInput)
	case description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	case req.File == nil && strings.TrimSpace(req.CID) == "":
		return fmt.Errorf("%w: a file is required", ErrInvalidInput)
	case req.File != nil && req.CID != "":
		return fmt.Errorf("%w: give either a file or a content identifier, not both", ErrInvalidInput)
	}
	if req.CID != "" {
		if _, err := cid.Decode(strings.TrimSpace(req.CID)); err != nil {
			return fmt.Errorf("%w: content identifier: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// GrantPolice gives account the police role.
func (s *Service) GrantPolice(ctx context.Context, account string) (RoleResult, error) {
	return s.changeRole(ctx, OpGrantPolice, account, (*contract.Registry).GrantPoliceRole)
}

// GrantCourtOfficial gives account the court official role.
func (s *Service) GrantCourtOfficial(ctx context.Context, account string) (RoleResult, error) {
	return s.changeRole(ctx, OpGrantCourtOfficial, account, (*contract.Registry).GrantCourtOfficialRole)
}

// RevokePolice removes the police role from account.
func (s *Service) RevokePolice(ctx context.Context, account string) (RoleResult, error) {
	return s.changeRole(ctx, OpRevokePolice, account, (*contract.Registry).RevokePoliceRole)
}

// RevokeCourtOfficial removes the court official role from account.
func (s *Service) RevokeCourtOfficial(ctx context.Context, account string) (RoleResult, error) {
	return s.changeRole(ctx, OpRevokeCourtOfficial, account, (*contract.Registry).RevokeCourtOfficialRole)
}

type roleMethod func(*contract.Registry, *bind.TransactOpts, common.Address) (*types.Transaction, error)

func (s *Service) changeRole(ctx context.Context, op Operation, account string, method roleMethod) (res RoleResult, err error) {
	if err := s.acquire(op); err != nil {
		return RoleResult{}, err
	}
	defer func() { s.release(op, err) }()

	if strings.TrimSpace(account) == "" {
		return RoleResult{}, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	target, err := contract.ParseAddress(account)
	if err != nil {
		return RoleResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := s.sessions.Capabilities(); err != nil {
		return RoleResult{}, err
	}

	receipt, err := s.transact(ctx, op, nil, func(r *contract.Registry, opts *bind.TransactOpts) (*types.Transaction, error) {
		return method(r, opts, target)
	})
	if err != nil {
		return RoleResult{}, err
	}

	res = RoleResult{
		Operation:   op.String(),
		Account:     target,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	snapshot, refreshErr := s.sessions.RefreshRoles(ctx)
	if refreshErr != nil {
		s.logger.Warn("refreshing roles after role change", "err", refreshErr)
		snapshot = s.sessions.Snapshot()
	}
	res.Session = snapshot
	s.logger.Info("role changed", "operation", op, "account", target, "tx", receipt.TxHash.Hex())
	return res, nil
}

// transact runs the network guard, submits the transaction built by send and
// waits for one confirmation.
func (s *Service) transact(
	ctx context.Context,
	op Operation,
	progress func(Stage),
	send func(*contract.Registry, *bind.TransactOpts) (*types.Transaction, error),
) (*types.Receipt, error) {
	if progress == nil {
		progress = func(Stage) {}
	}

	if err := s.sessions.Guard().Ensure(ctx); err != nil {
		return nil, err
	}
	progress(StageNetworkChecked)

	caps, err := s.sessions.Capabilities()
	if err != nil {
		return nil, err
	}
	opts, err := caps.Transactor(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := send(caps.Registry, opts)
	if err != nil {
		return nil, contract.ClassifySubmitError(err)
	}
	progress(StageSubmitted)
	s.logger.Debug("transaction submitted", "operation", op, "tx", tx.Hash().Hex())

	start := time.Now()
	receipt, err := contract.WaitForConfirmation(ctx, caps.Backend, tx, s.confirmTimeout)
	if err != nil {
		return nil, err
	}
	s.metrics.ConfirmationTime.With("operation", op.String()).Observe(time.Since(start).Seconds())
	progress(StageConfirmed)
	return receipt, nil
}

// ParseID parses an evidence identifier entered by a user.
func ParseID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: evidence id is required", ErrInvalidInput)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: evidence id %q is not a non-negative integer", ErrInvalidInput, s)
	}
	return id, nil
}

// GetEvidence reads one evidence entry. Reads do not check the network.
func (s *Service) GetEvidence(ctx context.Context, id uint64) (Record, error) {
	caps, err := s.sessions.Capabilities()
	if err != nil {
		return Record{}, err
	}
	raw, err := caps.Registry.GetEvidence(&bind.CallOpts{Context: ctx, From: caps.Address}, new(big.Int).SetUint64(id))
	if err != nil {
		return Record{}, contract.ClassifySubmitError(err)
	}
	return s.toRecord(raw)
}

// EvidenceCount returns the number of evidence entries.
func (s *Service) EvidenceCount(ctx context.Context) (uint64, error) {
	caps, err := s.sessions.Capabilities()
	if err != nil {
		return 0, err
	}
	n, err := caps.Registry.EvidenceCount(&bind.CallOpts{Context: ctx, From: caps.Address})
	if err != nil {
		return 0, contract.ClassifySubmitError(err)
	}
	return toUint64("evidence count", n)
}

func (s *Service) toRecord(raw contract.RawEvidence) (Record, error) {
	id, err := toUint64("id", raw.Id)
	if err != nil {
		return Record{}, err
	}
	ts, err := toUint64("timestamp", raw.Timestamp)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:          id,
		CaseID:      raw.CaseId,
		Description: raw.Description,
		ContentHash: raw.IpfsHash,
		Submitter:   raw.UploadedBy,
		Timestamp:   ts,
		GatewayURL:  s.pinner.GatewayURL(raw.IpfsHash),
	}, nil
}

func toUint64(field string, n *big.Int) (uint64, error) {
	if n == nil || n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s %v", ErrNumericRange, field, n)
	}
	return n.Uint64(), nil
}

func (s *Service) recordPinned(ctx context.Context, contentID, name string, size int64, caseID string) *journal.PinEntry {
	if s.journal == nil {
		return nil
	}
	e, err := s.journal.RecordPinned(ctx, contentID, name, size, caseID)
	if err != nil {
		s.logger.Error("journaling upload", "cid", contentID, "err", err)
		return nil
	}
	return &e
}

func (s *Service) findPinned(ctx context.Context, contentID string) *journal.PinEntry {
	if s.journal == nil {
		return nil
	}
	e, ok, err := s.journal.FindByCID(ctx, contentID)
	if err != nil {
		s.logger.Error("looking up journal entry", "cid", contentID, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &e
}

func (s *Service) markAnchored(ctx context.Context, e *journal.PinEntry, tx common.Hash) {
	if e == nil {
		return
	}
	if _, err := s.journal.MarkAnchored(ctx, e.ID, tx.Hex()); err != nil {
		s.logger.Error("journaling anchor", "cid", e.CID, "err", err)
	}
}

func (s *Service) markOrphaned(ctx context.Context, e *journal.PinEntry, cause error) {
	if e == nil {
		return
	}
	s.logger.Warn("upload is pinned but not referenced on chain", "cid", e.CID, "err", cause)
	// The operation context may already be done; the journal write must still land.
	if _, err := s.journal.MarkOrphaned(context.WithoutCancel(ctx), e.ID, cause); err != nil {
		s.logger.Error("journaling orphan", "cid", e.CID, "err", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
