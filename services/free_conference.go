package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
	"github.com/phillip/iinsaf-marketplace-go/targeting"
)

const minPurposeWords = 10

type ConferenceInput struct {
	Name     string
	Topic    string
	Purpose  string
	Date     time.Time
	Time     string
	Location models.Location
	UserType string
}

func (in ConferenceInput) validate() error {
	if strings.TrimSpace(in.Topic) == "" {
		return validationf("topic is required")
	}
	if len(strings.Fields(in.Purpose)) < minPurposeWords {
		return validationf("purpose must be at least %d words", minPurposeWords)
	}
	if in.Date.IsZero() || strings.TrimSpace(in.Time) == "" {
		return validationf("date and time are required")
	}
	if strings.TrimSpace(in.Location.State) == "" || strings.TrimSpace(in.Location.City) == "" {
		return validationf("location state and city are required")
	}
	if in.UserType != "" && !models.IsWorkerRole(in.UserType) {
		return validationf("user_type must be reporter or influencer")
	}
	return nil
}

func (in ConferenceInput) base(actor Actor, now time.Time) models.Conference {
	userType := in.UserType
	if userType == "" {
		userType = models.RoleReporter
	}
	return models.Conference{
		ID:          primitive.NewObjectID(),
		SubmittedBy: actor.ID,
		Name:        in.Name,
		Topic:       in.Topic,
		Purpose:     in.Purpose,
		Date:        in.Date,
		Time:        in.Time,
		Location:    in.Location,
		UserType:    userType,
		Status:      models.ConferenceStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SubmitFreeConference stores a new free conference under a unique FREE code.
func (s *Service) SubmitFreeConference(ctx context.Context, actor Actor, in ConferenceInput) (models.FreeConference, error) {
	if err := in.validate(); err != nil {
		return models.FreeConference{}, err
	}
	conf := models.FreeConference{Conference: in.base(actor, s.now())}
	err := s.withUniqueCode(models.FreeConferencePrefix, func(code string) error {
		conf.ConferenceID = code
		return s.store.CreateFreeConference(ctx, &conf)
	})
	if err != nil {
		return models.FreeConference{}, storeErr(err, "conference")
	}
	zap.L().Info("Free conference submitted", zap.String("conference_id", conf.ConferenceID), zap.String("submitted_by", actor.ID.Hex()))
	return conf, nil
}

// resolveConference runs targeting for conf against the verified pool.
func (s *Service) resolveConference(ctx context.Context, conf models.Conference, tgt models.Targeting, modified bool) (targeting.Result, error) {
	pool, err := s.store.ListWorkers(ctx, conf.UserType)
	if err != nil {
		return targeting.Result{}, storeErr(err, "reporters")
	}
	resolved := targeting.Resolve(targeting.Request{
		Targeting: tgt,
		Origin:    conf.Location,
		Excluded:  conf.ExcludedReporters,
		Role:      conf.UserType,
		Modified:  modified,
	}, pool)
	return resolved, nil
}

// persistOffer creates the pending rows for resolved reporters and notifies them.
func (s *Service) persistOffer(ctx context.Context, kind models.AssignmentKind, conf models.Conference, resolved targeting.Result, modified bool, now time.Time) error {
	if _, err := s.store.EnsurePending(ctx, kind, conf.ID, conf.ConferenceID, resolved.Reporters, now); err != nil {
		return storeErr(err, "assignments")
	}
	if modified {
		reopened, err := s.store.ReopenRejected(ctx, kind, conf.ID, resolved.IDs(), now)
		if err != nil {
			return storeErr(err, "assignments")
		}
		zap.L().Info("Rejected reporters re-offered", zap.String("conference_id", conf.ConferenceID), zap.Int("count", reopened))
	}
	zap.L().Info("Conference offered",
		zap.String("conference_id", conf.ConferenceID),
		zap.String("rule", string(resolved.Rule)),
		zap.Int("reporters", len(resolved.Reporters)))

	s.notifyAll(ctx, models.Notification{
		Kind:     models.NotifyConferenceOffered,
		EntityID: conf.ID,
		Subject:  "New press conference " + conf.ConferenceID,
		Body:     fmt.Sprintf("%s on %s at %s, %s", conf.Topic, conf.Date.Format("2006-01-02"), conf.Time, conf.Location.City),
	}, resolved.Reporters)
	return nil
}

func reviewTransition(action string) ([]models.ConferenceStatus, models.ConferenceStatus, error) {
	switch action {
	case ActionApprove:
		return []models.ConferenceStatus{models.ConferenceStatusPending}, models.ConferenceStatusApproved, nil
	case ActionModify:
		return []models.ConferenceStatus{models.ConferenceStatusPending, models.ConferenceStatusApproved, models.ConferenceStatusModified}, models.ConferenceStatusModified, nil
	case ActionReject:
		return []models.ConferenceStatus{models.ConferenceStatusPending}, models.ConferenceStatusRejected, nil
	default:
		return nil, "", validationf("action must be approve, reject or modify")
	}
}

// ReviewFreeConference applies an admin decision. A note is always required.
func (s *Service) ReviewFreeConference(ctx context.Context, actor Actor, id primitive.ObjectID, in ReviewInput) (models.FreeConference, error) {
	if !actor.IsAdmin() {
		return models.FreeConference{}, ErrForbidden
	}
	if strings.TrimSpace(in.Note) == "" {
		return models.FreeConference{}, validationf("note is required")
	}
	from, to, err := reviewTransition(in.Action)
	if err != nil {
		return models.FreeConference{}, err
	}
	conf, err := s.store.GetFreeConference(ctx, id)
	if err != nil {
		return models.FreeConference{}, storeErr(err, "conference")
	}

	now := s.now()
	patch := store.ConferencePatch{Status: &to, AdminNote: &in.Note}
	var resolved targeting.Result
	if to != models.ConferenceStatusRejected {
		tgt := conf.Targeting
		if in.Targeting != nil {
			tgt = *in.Targeting
		}
		resolved, err = s.resolveConference(ctx, conf.Conference, tgt, to == models.ConferenceStatusModified)
		if err != nil {
			return models.FreeConference{}, err
		}
		patch.Targeting = &tgt
		patch.NotifiedReporters = mergeIDs(conf.NotifiedReporters, resolved.IDs())
		if conf.ApprovedAt == nil {
			patch.ApprovedAt = &now
		}
	}

	updated, err := s.store.PatchFreeConference(ctx, id, from, patch)
	if errors.Is(err, store.ErrConflict) {
		return models.FreeConference{}, fmt.Errorf("%w: conference is %s", ErrInvalidTransition, conf.Status)
	}
	if err != nil {
		return models.FreeConference{}, storeErr(err, "conference")
	}
	if to != models.ConferenceStatusRejected {
		if err := s.persistOffer(ctx, models.KindFreeConference, updated.Conference, resolved, to == models.ConferenceStatusModified, now); err != nil {
			if _, rerr := s.store.PatchFreeConference(ctx, id, []models.ConferenceStatus{to}, store.ConferencePatch{Status: &conf.Status}); rerr != nil {
				zap.L().Error("Conference offer revert failed", zap.String("conference_id", conf.ConferenceID), zap.Error(rerr))
			}
			return models.FreeConference{}, err
		}
	}
	return updated, nil
}

func snapshotOf(c models.Conference) *models.ConferenceSnapshot {
	return &models.ConferenceSnapshot{Topic: c.Topic, Date: c.Date, Time: c.Time, Location: c.Location}
}

// AcceptFreeConference records the reporter's acceptance with a snapshot of
// the conference details.
func (s *Service) AcceptFreeConference(ctx context.Context, actor Actor, id primitive.ObjectID) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	conf, err := s.store.GetFreeConference(ctx, id)
	if err != nil {
		return models.Assignment{}, storeErr(err, "conference")
	}
	if !conf.Status.Open() {
		return models.Assignment{}, ErrNotOpen
	}
	a, err := s.assignment(ctx, models.KindFreeConference, id, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.Responded() {
		return models.Assignment{}, ErrAlreadyResponded
	}
	now := s.now()
	accepted := true
	a, err = s.transition(ctx, store.Transition{
		Kind:       models.KindFreeConference,
		EntityID:   id,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{models.AssignmentPending},
		Patch: store.AssignmentPatch{
			Status:     models.AssignmentAccepted,
			Accepted:   &accepted,
			AcceptedAt: &now,
			Snapshot:   snapshotOf(conf.Conference),
		},
		At: now,
	})
	if errors.Is(err, ErrConflict) {
		return models.Assignment{}, ErrAlreadyResponded
	}
	return a, err
}

// RejectConference declines a pending conference offer of either kind.
func (s *Service) RejectConference(ctx context.Context, actor Actor, kind models.AssignmentKind, id primitive.ObjectID, note string) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	a, err := s.assignment(ctx, kind, id, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.Responded() {
		return models.Assignment{}, ErrAlreadyResponded
	}
	now := s.now()
	a, err = s.transition(ctx, store.Transition{
		Kind:       kind,
		EntityID:   id,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{models.AssignmentPending},
		Patch: store.AssignmentPatch{
			Status:     models.AssignmentRejected,
			RejectedAt: &now,
			RejectNote: &note,
		},
		At: now,
	})
	if errors.Is(err, ErrConflict) {
		return models.Assignment{}, ErrAlreadyResponded
	}
	return a, err
}

// SubmitConferenceProof stores coverage proof for an accepted conference of
// either kind. A rejected proof may be resubmitted.
func (s *Service) SubmitConferenceProof(ctx context.Context, actor Actor, kind models.AssignmentKind, id primitive.ObjectID, in ProofInput) (models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return models.Assignment{}, err
	}
	a, err := s.assignment(ctx, kind, id, actor.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status != models.AssignmentAccepted {
		return models.Assignment{}, fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, a.Status)
	}
	current := a.ProofStatus()
	if current != "" && current != models.ProofRejected && current != models.ProofPending {
		return models.Assignment{}, fmt.Errorf("%w: proof is already %s", ErrInvalidTransition, current)
	}
	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.Assignment{}, err
	}
	if err := in.validate(pricing); err != nil {
		return models.Assignment{}, err
	}
	url, err := s.upload(ctx, in.Screenshot, "conference-proofs")
	if err != nil {
		return models.Assignment{}, err
	}

	now := s.now()
	return s.transition(ctx, store.Transition{
		Kind:       kind,
		EntityID:   id,
		ReporterID: actor.ID,
		From:       []models.AssignmentStatus{models.AssignmentAccepted},
		FromProof:  []models.ProofStatus{current},
		Patch: store.AssignmentPatch{
			Status: models.AssignmentAccepted,
			Proof: &models.Proof{
				Screenshot:  url,
				ChannelName: in.ChannelName,
				Platform:    in.Platform,
				VideoLink:   in.VideoLink,
				Duration:    in.Duration,
				Note:        in.Note,
				Status:      models.ProofPending,
				SubmittedAt: now,
			},
		},
		At: now,
	})
}

// ReviewFreeConferenceProof approves or rejects a pending proof. Approval
// completes the reporter's assignment and re-checks conference completion.
func (s *Service) ReviewFreeConferenceProof(ctx context.Context, actor Actor, id, reporterID primitive.ObjectID, approve bool, note string) (models.Assignment, error) {
	if !actor.IsAdmin() {
		return models.Assignment{}, ErrForbidden
	}
	if !approve && strings.TrimSpace(note) == "" {
		return models.Assignment{}, validationf("note is required to reject a proof")
	}
	a, err := s.assignment(ctx, models.KindFreeConference, id, reporterID)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status != models.AssignmentAccepted || a.ProofStatus() != models.ProofPending {
		return models.Assignment{}, fmt.Errorf("%w: no proof awaiting review", ErrInvalidTransition)
	}

	now := s.now()
	proof := *a.Proof
	patch := store.AssignmentPatch{Status: models.AssignmentAccepted, Proof: &proof}
	if approve {
		proof.Status = models.ProofApproved
		proof.AdminApprovedAt = &now
		patch.Status = models.AssignmentCompleted
		patch.CompletedAt = &now
	} else {
		proof.Status = models.ProofRejected
		proof.AdminRejectNote = note
		patch.AdminRejectedBy = &actor.ID
		patch.AdminRejectedAt = &now
		patch.AdminRejectNote = &note
	}
	updated, err := s.transition(ctx, store.Transition{
		Kind:       models.KindFreeConference,
		EntityID:   id,
		ReporterID: reporterID,
		From:       []models.AssignmentStatus{models.AssignmentAccepted},
		FromProof:  []models.ProofStatus{models.ProofPending},
		Patch:      patch,
		At:         now,
	})
	if err != nil {
		return models.Assignment{}, err
	}
	s.notifyProofReviewed(ctx, id, reporterID, "conference", approve, note)

	if approve {
		if _, err := s.completeFreeConference(ctx, id, false); err != nil && !errors.Is(err, ErrConflict) {
			return models.Assignment{}, err
		}
	}
	return updated, nil
}

// CompletionStatus summarises the responses to a conference offer.
type CompletionStatus struct {
	Targeted  int `json:"targeted"`
	Responded int `json:"responded"`
	Accepted  int `json:"accepted"`
	Completed int `json:"completed"`
}

// Done reports whether every targeted reporter responded and every
// accepted reporter completed.
func (c CompletionStatus) Done() bool {
	return c.Targeted > 0 && c.Responded >= c.Targeted && c.Accepted == 0
}

func summarise(rows []models.Assignment) CompletionStatus {
	st := CompletionStatus{Targeted: len(rows)}
	for _, a := range rows {
		switch a.Status {
		case models.AssignmentPending:
			continue
		case models.AssignmentCompleted:
			st.Completed++
		case models.AssignmentRejected:
		default:
			st.Accepted++
		}
		st.Responded++
	}
	return st
}

// CompleteFreeConference is the manual completion path.
func (s *Service) CompleteFreeConference(ctx context.Context, actor Actor, id primitive.ObjectID) (models.FreeConference, error) {
	if !actor.IsAdmin() {
		return models.FreeConference{}, ErrForbidden
	}
	return s.completeFreeConference(ctx, id, true)
}

func (s *Service) completeFreeConference(ctx context.Context, id primitive.ObjectID, manual bool) (models.FreeConference, error) {
	rows, err := s.store.ListByEntity(ctx, models.KindFreeConference, id)
	if err != nil {
		return models.FreeConference{}, storeErr(err, "assignments")
	}
	st := summarise(rows)
	if !st.Done() {
		return models.FreeConference{}, fmt.Errorf("%w: %d of %d reporters responded, %d accepted reporters have not completed",
			ErrConflict, st.Responded, st.Targeted, st.Accepted)
	}
	now := s.now()
	status := models.ConferenceStatusCompleted
	conf, err := s.store.PatchFreeConference(ctx, id,
		[]models.ConferenceStatus{models.ConferenceStatusApproved, models.ConferenceStatusModified},
		store.ConferencePatch{Status: &status, CompletedAt: &now})
	if errors.Is(err, store.ErrConflict) {
		return models.FreeConference{}, fmt.Errorf("%w: conference cannot be completed from its current status", ErrInvalidTransition)
	}
	if err != nil {
		return models.FreeConference{}, storeErr(err, "conference")
	}
	zap.L().Info("Free conference completed",
		zap.String("conference_id", conf.ConferenceID),
		zap.Bool("manual", manual),
		zap.Int("completed", st.Completed))
	return conf, nil
}

// RemoveConferenceReporter drops a reporter from a conference and bars them
// from being offered it again.
func (s *Service) RemoveConferenceReporter(ctx context.Context, actor Actor, kind models.AssignmentKind, id, reporterID primitive.ObjectID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if kind != models.KindFreeConference && kind != models.KindPaidConference {
		return validationf("unknown conference kind %q", kind)
	}
	_, err := s.store.RemoveAssignment(ctx, kind, id, reporterID)
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: reporter already completed this conference", ErrConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return storeErr(err, "assignment")
	}
	if err := s.store.ExcludeReporter(ctx, kind, id, reporterID); err != nil {
		return storeErr(err, "conference")
	}
	zap.L().Info("Reporter removed from conference",
		zap.String("kind", string(kind)),
		zap.String("conference", id.Hex()),
		zap.String("reporter_id", reporterID.Hex()))
	return nil
}

type ConferenceDetail[T any] struct {
	Conference  T                   `json:"conference"`
	Assignments []models.Assignment `json:"assignments"`
	Progress    CompletionStatus    `json:"progress"`
}

func (s *Service) GetFreeConference(ctx context.Context, actor Actor, id primitive.ObjectID) (ConferenceDetail[models.FreeConference], error) {
	conf, err := s.store.GetFreeConference(ctx, id)
	if err != nil {
		return ConferenceDetail[models.FreeConference]{}, storeErr(err, "conference")
	}
	if !actor.IsAdmin() && conf.SubmittedBy != actor.ID {
		return ConferenceDetail[models.FreeConference]{}, ErrNotOwner
	}
	rows, err := s.store.ListByEntity(ctx, models.KindFreeConference, id)
	if err != nil {
		return ConferenceDetail[models.FreeConference]{}, storeErr(err, "assignments")
	}
	return ConferenceDetail[models.FreeConference]{Conference: conf, Assignments: rows, Progress: summarise(rows)}, nil
}

func (s *Service) ListFreeConferences(ctx context.Context, actor Actor, status models.ConferenceStatus) ([]models.FreeConference, error) {
	filter := store.ConferenceFilter{Status: status}
	if !actor.IsAdmin() {
		filter.SubmittedBy = &actor.ID
	}
	out, err := s.store.ListFreeConferences(ctx, filter)
	return out, storeErr(err, "conferences")
}

// ListReporterConferences returns the reporter's assignments of kind.
func (s *Service) ListReporterConferences(ctx context.Context, actor Actor, kind models.AssignmentKind) ([]models.Assignment, error) {
	if err := requireWorker(actor); err != nil {
		return nil, err
	}
	rows, err := s.store.ListByReporter(ctx, kind, actor.ID)
	return rows, storeErr(err, "assignments")
}
