package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workflow-station/task-engine/internal/application/port"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DelegationRuleRequest carries the mutable fields of a delegation rule.
type DelegationRuleRequest struct {
	DelegateID     string     `json:"delegate_id"`
	DelegationType string     `json:"delegation_type"`
	ProcessTypes   []string   `json:"process_types,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// DelegationService owns the delegation-rule lifecycle and is the
// authorization primitive for acting on another principal's tasks.
type DelegationService interface {
	CreateRule(ctx context.Context, delegatorID string, req DelegationRuleRequest) (*entity.DelegationRule, error)
	UpdateRule(ctx context.Context, ruleID int64, callerID string, req DelegationRuleRequest) (*entity.DelegationRule, error)
	SuspendRule(ctx context.Context, ruleID int64, callerID string) (*entity.DelegationRule, error)
	ResumeRule(ctx context.Context, ruleID int64, callerID string) (*entity.DelegationRule, error)
	DeleteRule(ctx context.Context, ruleID int64, callerID string) error
	RulesByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error)
	RulesForDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationRule, error)

	// EffectiveDelegatesFor returns the delegator ids whose ACTIVE rules let
	// principal act on their tasks for the given process type at asOf. An
	// empty processType matches any PARTIAL scope.
	EffectiveDelegatesFor(ctx context.Context, principal, processType string, asOf time.Time) ([]string, error)
}

type delegationServiceImpl struct {
	ruleRepo port.DelegationRuleRepository
	audit    port.AuditSink
	logger   Logger

	// Rule mutations are serialized per delegator so the cycle-check-then-write
	// sequence is atomic. Reads never take these locks.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDelegationService creates a new DelegationService.
func NewDelegationService(ruleRepo port.DelegationRuleRepository, audit port.AuditSink, logger Logger) DelegationService {
	return &delegationServiceImpl{
		ruleRepo: ruleRepo,
		audit:    audit,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *delegationServiceImpl) delegatorLock(delegatorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[delegatorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[delegatorID] = l
	}
	return l
}

// CreateRule validates and persists a new ACTIVE delegation rule.
func (s *delegationServiceImpl) CreateRule(ctx context.Context, delegatorID string, req DelegationRuleRequest) (*entity.DelegationRule, error) {
	if err := validateRuleRequest(delegatorID, req); err != nil {
		return nil, err
	}

	lock := s.delegatorLock(delegatorID)
	lock.Lock()
	defer lock.Unlock()

	cyclic, err := s.wouldCreateCycle(ctx, delegatorID, req.DelegateID)
	if err != nil {
		return nil, fmt.Errorf("cycle check: %w", err)
	}
	if cyclic {
		return nil, entity.ValidationError("circular delegation: %s is already delegating back to %s", req.DelegateID, delegatorID)
	}

	rule := &entity.DelegationRule{
		DelegatorID:    delegatorID,
		DelegateID:     req.DelegateID,
		DelegationType: req.DelegationType,
		ProcessTypes:   req.ProcessTypes,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         entity.DelegationStatusActive,
		Reason:         req.Reason,
	}
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		s.logger.Error("Failed to create delegation rule", "delegator_id", delegatorID, "error", err)
		return nil, fmt.Errorf("save delegation rule: %w", err)
	}

	s.recordAudit(ctx, delegatorID, req.DelegateID, "", entity.AuditCreateDelegation, req.Reason)
	s.logger.Info("Delegation rule created", "rule_id", rule.ID, "delegator_id", delegatorID, "delegate_id", req.DelegateID)
	return rule, nil
}

// UpdateRule replaces the mutable fields of an existing rule.
func (s *delegationServiceImpl) UpdateRule(ctx context.Context, ruleID int64, callerID string, req DelegationRuleRequest) (*entity.DelegationRule, error) {
	if err := validateRuleRequest(callerID, req); err != nil {
		return nil, err
	}

	lock := s.delegatorLock(callerID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := s.ownedRule(ctx, ruleID, callerID)
	if err != nil {
		return nil, err
	}

	if req.DelegateID != rule.DelegateID && rule.Status == entity.DelegationStatusActive {
		cyclic, err := s.wouldCreateCycle(ctx, rule.DelegatorID, req.DelegateID)
		if err != nil {
			return nil, fmt.Errorf("cycle check: %w", err)
		}
		if cyclic {
			return nil, entity.ValidationError("circular delegation: %s is already delegating back to %s", req.DelegateID, rule.DelegatorID)
		}
	}

	rule.DelegateID = req.DelegateID
	rule.DelegationType = req.DelegationType
	rule.ProcessTypes = req.ProcessTypes
	rule.StartTime = req.StartTime
	rule.EndTime = req.EndTime
	rule.Reason = req.Reason
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		s.logger.Error("Failed to update delegation rule", "rule_id", ruleID, "error", err)
		return nil, fmt.Errorf("save delegation rule: %w", err)
	}

	s.recordAudit(ctx, rule.DelegatorID, rule.DelegateID, "", entity.AuditUpdateDelegation, req.Reason)
	s.logger.Info("Delegation rule updated", "rule_id", ruleID, "delegator_id", callerID)
	return rule, nil
}

// SuspendRule pauses an active rule without deleting it.
func (s *delegationServiceImpl) SuspendRule(ctx context.Context, ruleID int64, callerID string) (*entity.DelegationRule, error) {
	lock := s.delegatorLock(callerID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := s.ownedRule(ctx, ruleID, callerID)
	if err != nil {
		return nil, err
	}

	rule.Status = entity.DelegationStatusSuspended
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		s.logger.Error("Failed to suspend delegation rule", "rule_id", ruleID, "error", err)
		return nil, fmt.Errorf("save delegation rule: %w", err)
	}

	s.recordAudit(ctx, rule.DelegatorID, rule.DelegateID, "", entity.AuditSuspendDelegation, "")
	s.logger.Info("Delegation rule suspended", "rule_id", ruleID, "delegator_id", callerID)
	return rule, nil
}

// ResumeRule reactivates a suspended rule. The cycle check re-runs against
// the current ACTIVE graph: edges added since the suspension may make the
// old rule unsafe.
func (s *delegationServiceImpl) ResumeRule(ctx context.Context, ruleID int64, callerID string) (*entity.DelegationRule, error) {
	lock := s.delegatorLock(callerID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := s.ownedRule(ctx, ruleID, callerID)
	if err != nil {
		return nil, err
	}

	cyclic, err := s.wouldCreateCycle(ctx, rule.DelegatorID, rule.DelegateID)
	if err != nil {
		return nil, fmt.Errorf("cycle check: %w", err)
	}
	if cyclic {
		return nil, entity.ValidationError("circular delegation: %s is already delegating back to %s", rule.DelegateID, rule.DelegatorID)
	}

	rule.Status = entity.DelegationStatusActive
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		s.logger.Error("Failed to resume delegation rule", "rule_id", ruleID, "error", err)
		return nil, fmt.Errorf("save delegation rule: %w", err)
	}

	s.recordAudit(ctx, rule.DelegatorID, rule.DelegateID, "", entity.AuditResumeDelegation, "")
	s.logger.Info("Delegation rule resumed", "rule_id", ruleID, "delegator_id", callerID)
	return rule, nil
}

// DeleteRule removes a rule permanently.
func (s *delegationServiceImpl) DeleteRule(ctx context.Context, ruleID int64, callerID string) error {
	lock := s.delegatorLock(callerID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := s.ownedRule(ctx, ruleID, callerID)
	if err != nil {
		return err
	}

	if err := s.ruleRepo.Delete(ctx, ruleID); err != nil {
		s.logger.Error("Failed to delete delegation rule", "rule_id", ruleID, "error", err)
		return fmt.Errorf("delete delegation rule: %w", err)
	}

	s.recordAudit(ctx, rule.DelegatorID, rule.DelegateID, "", entity.AuditDeleteDelegation, "")
	s.logger.Info("Delegation rule deleted", "rule_id", ruleID, "delegator_id", callerID)
	return nil
}

// RulesByDelegator lists all rules owned by the delegator.
func (s *delegationServiceImpl) RulesByDelegator(ctx context.Context, delegatorID string) ([]*entity.DelegationRule, error) {
	rules, err := s.ruleRepo.FindByDelegator(ctx, delegatorID)
	if err != nil {
		return nil, fmt.Errorf("find rules by delegator: %w", err)
	}
	return rules, nil
}

// RulesForDelegate lists the ACTIVE rules naming the user as delegate.
func (s *delegationServiceImpl) RulesForDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationRule, error) {
	rules, err := s.ruleRepo.FindActiveByDelegate(ctx, delegateID)
	if err != nil {
		return nil, fmt.Errorf("find rules for delegate: %w", err)
	}
	return rules, nil
}

// EffectiveDelegatesFor returns the distinct delegator ids principal may
// currently stand in for.
func (s *delegationServiceImpl) EffectiveDelegatesFor(ctx context.Context, principal, processType string, asOf time.Time) ([]string, error) {
	rules, err := s.ruleRepo.FindActiveByDelegate(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find rules for delegate: %w", err)
	}

	seen := make(map[string]bool)
	var delegators []string
	for _, rule := range rules {
		if !rule.Matches(processType, asOf) {
			continue
		}
		if !seen[rule.DelegatorID] {
			seen[rule.DelegatorID] = true
			delegators = append(delegators, rule.DelegatorID)
		}
	}
	return delegators, nil
}

// ownedRule loads a rule and enforces delegator ownership.
func (s *delegationServiceImpl) ownedRule(ctx context.Context, ruleID int64, callerID string) (*entity.DelegationRule, error) {
	rule, err := s.ruleRepo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("find delegation rule: %w", err)
	}
	if rule == nil {
		return nil, entity.NotFoundError("delegation rule %d", ruleID)
	}
	if rule.DelegatorID != callerID {
		return nil, entity.UnauthorizedError("only the delegator may modify rule %d", ruleID)
	}
	return rule, nil
}

// wouldCreateCycle walks ACTIVE edges (delegator -> delegate) from the
// proposed delegate; reaching the proposed delegator means the new edge
// would close a cycle. A direct-pair check is not enough because longer
// chains must also be rejected.
func (s *delegationServiceImpl) wouldCreateCycle(ctx context.Context, delegatorID, delegateID string) (bool, error) {
	visited := map[string]bool{delegateID: true}
	queue := []string{delegateID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == delegatorID {
			return true, nil
		}

		rules, err := s.ruleRepo.FindActiveByDelegator(ctx, current)
		if err != nil {
			return false, err
		}
		for _, rule := range rules {
			if !visited[rule.DelegateID] {
				visited[rule.DelegateID] = true
				queue = append(queue, rule.DelegateID)
			}
		}
	}
	return false, nil
}

// recordAudit emits one audit event; failures are logged and swallowed so
// observability problems never block rule mutations.
func (s *delegationServiceImpl) recordAudit(ctx context.Context, delegatorID, delegateID, taskID, operation, detail string) {
	event := &entity.DelegationAudit{
		EventID:       uuid.NewString(),
		DelegatorID:   delegatorID,
		DelegateID:    delegateID,
		TaskID:        taskID,
		OperationType: operation,
		Result:        "SUCCESS",
		Detail:        detail,
		CreatedAt:     time.Now(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("Failed to record delegation audit", "operation", operation, "error", err)
	}
}

func validateRuleRequest(delegatorID string, req DelegationRuleRequest) error {
	if req.DelegateID == "" {
		return entity.ValidationError("delegate not specified")
	}
	if req.DelegateID == delegatorID {
		return entity.ValidationError("cannot delegate to yourself")
	}
	switch req.DelegationType {
	case entity.DelegationAll, entity.DelegationPartial, entity.DelegationTemporary:
	default:
		return entity.ValidationError("unknown delegation type: %s", req.DelegationType)
	}
	if req.DelegationType == entity.DelegationPartial && len(req.ProcessTypes) == 0 {
		return entity.ValidationError("partial delegation requires process types")
	}
	if req.StartTime != nil && req.EndTime != nil && req.EndTime.Before(*req.StartTime) {
		return entity.ValidationError("end time precedes start time")
	}
	return nil
}
