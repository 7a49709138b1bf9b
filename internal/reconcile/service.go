package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/tapkeeper/tapkeeper/internal/account/domain"
	"github.com/tapkeeper/tapkeeper/internal/config"
	obsmetrics "github.com/tapkeeper/tapkeeper/internal/observability/metrics"
	"github.com/tapkeeper/tapkeeper/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// chunkSize caps operations per batched write; large rosters exceed what a
// single batch can carry, so chunks apply sequentially and are not atomic
// across the whole roster.
const chunkSize = 400

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Slack       slack.Provider
	AccountRepo accountdomain.Repository
	Domains     *config.DomainsHolder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	slack       slack.Provider
	accountRepo accountdomain.Repository
	domains     *config.DomainsHolder
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconcile.service"),
		genID:       p.GenID,
		slack:       p.Slack,
		accountRepo: p.AccountRepo,
		domains:     p.Domains,
		obsMetrics:  p.ObsMetrics,
	}
}

type plannedOp struct {
	action       string
	create       *accountdomain.Account
	updateID     snowflake.ID
	updateFields map[string]any
	deleteID     snowflake.ID
}

// Reconcile converges stored accounts to the workspace roster. Dry-run
// computes the identical report without writing. A mid-chunk failure leaves
// earlier chunks committed; the returned report is then marked Partial.
func (s *Service) Reconcile(ctx context.Context, dryRun bool) (*Report, error) {
	members, err := s.slack.ListMembers(ctx)
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordReconcileRun("directory_error")
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryFetch, err)
	}

	accounts, err := s.accountRepo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	report, ops := s.plan(members, accounts, dryRun)

	if dryRun {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordReconcileRun("dry_run")
		}
		return report, nil
	}

	if err := s.apply(ctx, report, ops); err != nil {
		report.Partial = true
		if s.obsMetrics != nil {
			s.obsMetrics.RecordReconcileRun("partial")
		}
		return report, err
	}

	s.log.Info("roster reconciled",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("deleted", report.Deleted),
		zap.Int("unchanged", report.Unchanged),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReconcileRun("ok")
		s.obsMetrics.RecordReconcileAction(ActionCreate, report.Created)
		s.obsMetrics.RecordReconcileAction(ActionUpdate, report.Updated)
		s.obsMetrics.RecordReconcileAction(ActionDelete, report.Deleted)
	}
	return report, nil
}

func (s *Service) plan(members []slack.Member, accounts []*accountdomain.Account, dryRun bool) (*Report, []plannedOp) {
	report := &Report{DryRun: dryRun, Changes: []Change{}}
	var ops []plannedOp

	bySlackID := make(map[string]*accountdomain.Account, len(accounts))
	for _, a := range accounts {
		bySlackID[a.SlackID] = a
	}

	// directory is kept for membership lookups; the planning loop walks the
	// member slice so the report lists changes in roster order on every run.
	directory := make(map[string]slack.Member, len(members))
	for _, m := range members {
		if m.IsBot || m.ID == "USLACKBOT" {
			continue
		}
		directory[m.ID] = m
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.IsBot || m.ID == "USLACKBOT" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.Deleted {
			continue
		}
		employee := s.domains.IsEmployeeEmail(m.Email)
		existing, ok := bySlackID[m.ID]
		if !ok {
			created := &accountdomain.Account{
				ID:         s.genID.Generate(),
				SlackID:    m.ID,
				Name:       m.Name,
				Username:   m.Username,
				Email:      m.Email,
				AvatarURL:  m.AvatarURL,
				IsEmployee: employee,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			ops = append(ops, plannedOp{action: ActionCreate, create: created})
			report.Created++
			report.Changes = append(report.Changes, Change{
				SlackID: m.ID,
				Action:  ActionCreate,
				Reason:  ReasonNewMember,
				After: map[string]any{
					"name":        m.Name,
					"username":    m.Username,
					"is_employee": employee,
				},
			})
			continue
		}

		// Only employee-status flips and avatar changes count as drift;
		// name/username churn is deliberately not an update trigger.
		fields := map[string]any{}
		before := map[string]any{}
		after := map[string]any{}
		if existing.IsEmployee != employee {
			fields["is_employee"] = employee
			before["is_employee"] = existing.IsEmployee
			after["is_employee"] = employee
		}
		if existing.AvatarURL != m.AvatarURL {
			fields["avatar_url"] = m.AvatarURL
			before["avatar_url"] = existing.AvatarURL
			after["avatar_url"] = m.AvatarURL
		}
		if len(fields) == 0 {
			report.Unchanged++
			continue
		}
		ops = append(ops, plannedOp{action: ActionUpdate, updateID: existing.ID, updateFields: fields})
		report.Updated++
		report.Changes = append(report.Changes, Change{
			SlackID: m.ID,
			Action:  ActionUpdate,
			Reason:  "Directory profile changed.",
			Before:  before,
			After:   after,
		})
	}

	for _, a := range accounts {
		m, live := directory[a.SlackID]
		if live && !m.Deleted {
			continue
		}
		if a.TotalPurchased != 0 {
			// Purchase history pins the account forever.
			report.Unchanged++
			continue
		}
		reason := ReasonNotInDirectory
		if live && m.Deleted {
			reason = ReasonMarkedDeleted
		}
		ops = append(ops, plannedOp{action: ActionDelete, deleteID: a.ID})
		report.Deleted++
		report.Changes = append(report.Changes, Change{
			SlackID: a.SlackID,
			Action:  ActionDelete,
			Reason:  reason,
			Before: map[string]any{
				"name":     a.Name,
				"username": a.Username,
			},
		})
	}

	return report, ops
}

func (s *Service) apply(ctx context.Context, report *Report, ops []plannedOp) error {
	for start := 0; start < len(ops); start += chunkSize {
		end := start + chunkSize
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, op := range chunk {
				switch op.action {
				case ActionCreate:
					if err := s.accountRepo.Insert(ctx, tx, op.create); err != nil {
						return err
					}
				case ActionUpdate:
					if err := s.accountRepo.UpdateProfile(ctx, tx, op.updateID, op.updateFields); err != nil {
						return err
					}
				case ActionDelete:
					if err := s.accountRepo.Delete(ctx, tx, op.deleteID); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply chunk %d-%d: %w", start, end, err)
		}
		report.Applied += len(chunk)
	}
	return nil
}
