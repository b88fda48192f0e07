package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workflow-station/task-engine/internal/domain/assignment"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

type processFixture struct {
	svc         TaskProcessService
	repo        *memTaskRepo
	delegations DelegationService
	audit       *memAuditSink
	notifier    *stubNotifier
}

func newProcessFixture(dir *stubDirectory, tasks ...*entity.Task) *processFixture {
	if dir == nil {
		dir = &stubDirectory{}
	}
	repo := newMemTaskRepo(tasks...)
	audit := &memAuditSink{}
	notifier := &stubNotifier{}
	delegations := NewDelegationService(newMemRuleRepo(), audit, testLogger{})
	svc := NewTaskProcessService(
		repo, delegations, assignment.NewResolver(dir), dir, audit, notifier, testLogger{},
	)
	return &processFixture{svc: svc, repo: repo, delegations: delegations, audit: audit, notifier: notifier}
}

func groupDirectory(groupID string, members ...string) *stubDirectory {
	return &stubDirectory{
		VirtualGroupMembersFunc: func(id string) ([]string, error) {
			if id == groupID {
				return members, nil
			}
			return nil, nil
		},
	}
}

func TestTaskProcessService_Claim(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("candidate claims a pooled task", func(t *testing.T) {
		f := newProcessFixture(groupDirectory("g1", "alice", "bob"),
			pendingTask("t1", entity.AssignmentVirtualGroup, "g1", base))

		task, err := f.svc.Claim(ctx, "t1", "alice")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentUser, task.AssignmentType)
		assert.Equal(t, "alice", task.Assignee)
		assert.Empty(t, task.DelegatorID)

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.Assignee)
	})

	t.Run("dept role member claims through the role pool", func(t *testing.T) {
		dir := &stubDirectory{
			DeptRoleMembersFunc: func(roleKey string) ([]string, error) {
				return []string{"carol"}, nil
			},
		}
		f := newProcessFixture(dir,
			pendingTask("t1", entity.AssignmentDeptRole, "dept-001:approver", base))

		task, err := f.svc.Claim(ctx, "t1", "carol")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentUser, task.AssignmentType)
		assert.Equal(t, "carol", task.Assignee)
	})

	t.Run("missing task is not found", func(t *testing.T) {
		f := newProcessFixture(nil)

		_, err := f.svc.Claim(ctx, "nope", "alice")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("directly assigned task is not claimable", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		_, err := f.svc.Claim(ctx, "t1", "bob")
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("non-candidate is rejected", func(t *testing.T) {
		f := newProcessFixture(groupDirectory("g1", "alice"),
			pendingTask("t1", entity.AssignmentVirtualGroup, "g1", base))

		_, err := f.svc.Claim(ctx, "t1", "mallory")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("second claim conflicts", func(t *testing.T) {
		f := newProcessFixture(groupDirectory("g1", "alice", "bob"),
			pendingTask("t1", entity.AssignmentVirtualGroup, "g1", base))

		_, err := f.svc.Claim(ctx, "t1", "alice")
		require.NoError(t, err)

		_, err = f.svc.Claim(ctx, "t1", "bob")
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("exactly one of many concurrent claimers wins", func(t *testing.T) {
		const claimers = 16
		members := make([]string, claimers)
		for i := range members {
			members[i] = fmt.Sprintf("user-%02d", i)
		}
		f := newProcessFixture(groupDirectory("g1", members...),
			pendingTask("t1", entity.AssignmentVirtualGroup, "g1", base))

		var wg sync.WaitGroup
		errs := make([]error, claimers)
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Claim(ctx, "t1", members[i])
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			// Losers see a retryable conflict or, if they read after the
			// winner's write, a validation failure. Never unauthorized.
			retryable := errors.Is(err, entity.ErrConflict) || errors.Is(err, entity.ErrValidation)
			assert.True(t, retryable, "unexpected loser error: %v", err)
		}
		assert.Equal(t, 1, winners)

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentUser, stored.AssignmentType)
		assert.Contains(t, members, stored.Assignee)
	})
}

func TestTaskProcessService_Unclaim(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("owner returns the task to its pool", func(t *testing.T) {
		f := newProcessFixture(groupDirectory("g1", "alice"),
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		task, err := f.svc.Unclaim(ctx, "t1", "alice", entity.AssignmentVirtualGroup, "g1")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentVirtualGroup, task.AssignmentType)
		assert.Equal(t, "g1", task.Assignee)
	})

	t.Run("non-owner may not unclaim", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		_, err := f.svc.Unclaim(ctx, "t1", "bob", entity.AssignmentVirtualGroup, "g1")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("rejects a non-pool type", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		_, err := f.svc.Unclaim(ctx, "t1", "alice", entity.AssignmentUser, "alice")
		assert.ErrorIs(t, err, entity.ErrValidation)
	})
}

func TestTaskProcessService_CanProcessTask(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("only the assignee or their effective delegate may act on a USER task", func(t *testing.T) {
		f := newProcessFixture(nil)
		task := pendingTask("t1", entity.AssignmentUser, "alice", base)

		ok, err := f.svc.CanProcessTask(ctx, task, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.svc.CanProcessTask(ctx, task, "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = f.delegations.CreateRule(ctx, "alice", DelegationRuleRequest{
			DelegateID:     "bob",
			DelegationType: entity.DelegationAll,
		})
		require.NoError(t, err)

		ok, err = f.svc.CanProcessTask(ctx, task, "bob")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delegated task answers to the delegator's delegates", func(t *testing.T) {
		f := newProcessFixture(nil)
		task := pendingTask("t1", entity.AssignmentDelegated, "carol", base)
		task.DelegatorID = "alice"

		_, err := f.delegations.CreateRule(ctx, "alice", DelegationRuleRequest{
			DelegateID:     "bob",
			DelegationType: entity.DelegationAll,
		})
		require.NoError(t, err)

		ok, err := f.svc.CanProcessTask(ctx, task, "bob")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("partial delegation does not authorize out-of-scope processes", func(t *testing.T) {
		f := newProcessFixture(nil)
		task := pendingTask("t1", entity.AssignmentUser, "alice", base)
		task.ProcessDefinitionKey = "purchase"

		_, err := f.delegations.CreateRule(ctx, "alice", DelegationRuleRequest{
			DelegateID:     "bob",
			DelegationType: entity.DelegationPartial,
			ProcessTypes:   []string{"expense"},
		})
		require.NoError(t, err)

		ok, err := f.svc.CanProcessTask(ctx, task, "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pool member may act without claiming", func(t *testing.T) {
		f := newProcessFixture(groupDirectory("g1", "alice"))
		task := pendingTask("t1", entity.AssignmentVirtualGroup, "g1", base)

		ok, err := f.svc.CanProcessTask(ctx, task, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestTaskProcessService_DelegateAndTransfer(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("delegate records the chain back to the delegator", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		require.NoError(t, f.svc.Delegate(ctx, "t1", "alice", "bob", "covering"))

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentDelegated, stored.AssignmentType)
		assert.Equal(t, "bob", stored.Assignee)
		assert.Equal(t, "alice", stored.DelegatorID)
		assert.Contains(t, f.audit.operations(), entity.AuditDelegateTask)
	})

	t.Run("transfer hands over ownership without a chain", func(t *testing.T) {
		task := pendingTask("t1", entity.AssignmentDelegated, "bob", base)
		task.DelegatorID = "alice"
		f := newProcessFixture(nil, task)

		require.NoError(t, f.svc.Transfer(ctx, "t1", "bob", "carol", ""))

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentUser, stored.AssignmentType)
		assert.Equal(t, "carol", stored.Assignee)
		assert.Empty(t, stored.DelegatorID)
		assert.Contains(t, f.audit.operations(), entity.AuditTransferTask)
	})

	t.Run("unauthorized user may not delegate", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		err := f.svc.Delegate(ctx, "t1", "mallory", "bob", "")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})

	t.Run("missing target is a validation failure", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		assert.ErrorIs(t, f.svc.Delegate(ctx, "t1", "alice", "", ""), entity.ErrValidation)
		assert.ErrorIs(t, f.svc.Transfer(ctx, "t1", "alice", "", ""), entity.ErrValidation)
	})
}

func TestTaskProcessService_CompleteTask(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("approve removes the task and notifies the engine", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionApprove,
		}, "alice")
		require.NoError(t, err)

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Nil(t, stored)
		assert.Equal(t, []string{"t1:APPROVE"}, f.notifier.completed)
	})

	t.Run("notifier failure keeps the task and the completion retryable", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))
		f.notifier.err = errors.New("engine unavailable")

		err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionApprove,
		}, "alice")
		require.Error(t, err)

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Empty(t, f.notifier.completed)

		f.notifier.err = nil
		err = f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionApprove,
		}, "alice")
		require.NoError(t, err)

		stored, err = f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Nil(t, stored)
		assert.Equal(t, []string{"t1:APPROVE"}, f.notifier.completed)
	})

	t.Run("reject requires a non-blank comment before any state change", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		for _, comment := range []string{"", "   ", "\t\n"} {
			err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
				TaskID: "t1", Action: entity.ActionReject, Comment: comment,
			}, "alice")
			assert.ErrorIs(t, err, entity.ErrValidation)
		}

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Empty(t, f.notifier.completed)

		err = f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionReject, Comment: "missing receipts",
		}, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"t1:REJECT"}, f.notifier.completed)
	})

	t.Run("delegate action routes through task delegation", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionDelegate, TargetUserID: "bob",
		}, "alice")
		require.NoError(t, err)

		stored, err := f.repo.FindByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, entity.AssignmentDelegated, stored.AssignmentType)
		assert.Empty(t, f.notifier.completed)
	})

	t.Run("delegate and transfer require a target user", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		for _, action := range []string{entity.ActionDelegate, entity.ActionTransfer} {
			err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
				TaskID: "t1", Action: action,
			}, "alice")
			assert.ErrorIs(t, err, entity.ErrValidation)
		}
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: "ESCALATE",
		}, "alice")
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("unauthorized completion is rejected", func(t *testing.T) {
		f := newProcessFixture(nil,
			pendingTask("t1", entity.AssignmentUser, "alice", base))

		err := f.svc.CompleteTask(ctx, TaskCompleteRequest{
			TaskID: "t1", Action: entity.ActionApprove,
		}, "mallory")
		assert.ErrorIs(t, err, entity.ErrUnauthorized)
	})
}
