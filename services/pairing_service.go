package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"
	"anniversary_server/logger"
	"anniversary_server/models"

	"github.com/google/uuid"
)

// LinkError is returned by RedeemCode when the partner profile was created
// but attaching it to the relationship failed transiently. Retrying
// LinkPartner with the carried ids completes the redemption without
// creating a second profile.
type LinkError struct {
	RelationshipID string
	ParticipantID  string
	Err            error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link participant %s to relationship %s: %v", e.ParticipantID, e.RelationshipID, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// PairingService creates relationships and redeems couple codes.
type PairingService struct {
	Store KeyPathStore
	Clock clock.Clock
	// NewCode overrides couple code generation, mainly for tests.
	NewCode func() (string, error)
}

func NewPairingService(store KeyPathStore, clk clock.Clock) *PairingService {
	if clk == nil {
		clk = clock.System()
	}
	return &PairingService{Store: store, Clock: clk}
}

// GenerateCoupleCode draws CoupleCodeLength independent, uniformly
// distributed characters from the code alphabet.
func GenerateCoupleCode() (string, error) {
	alphabet := big.NewInt(int64(len(models.CoupleCodeAlphabet)))
	var b strings.Builder
	b.Grow(models.CoupleCodeLength)
	for i := 0; i < models.CoupleCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", fmt.Errorf("generate couple code: %w", err)
		}
		b.WriteByte(models.CoupleCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and uppercases a code and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", apperrors.Validation("redeem", "couple code is required")
	}
	if len(code) != models.CoupleCodeLength {
		return "", apperrors.Validation("redeem", "couple code must be %d characters", models.CoupleCodeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(models.CoupleCodeAlphabet, r) {
			return "", apperrors.Validation("redeem", "couple code contains invalid character %q", r)
		}
	}
	return code, nil
}

// CreateRelationship registers the initiator and opens a relationship
// waiting for a partner.
func (s *PairingService) CreateRelationship(ctx context.Context, initiatorName string, startDate time.Time) (*models.Relationship, *models.Participant, error) {
	initiatorName = strings.TrimSpace(initiatorName)
	if initiatorName == "" {
		return nil, nil, apperrors.Validation("create relationship", "initiator name is required")
	}
	if startDate.IsZero() {
		return nil, nil, apperrors.Validation("create relationship", "relationship start date is required")
	}

	generate := s.NewCode
	if generate == nil {
		generate = GenerateCoupleCode
	}
	code, err := generate()
	if err != nil {
		return nil, nil, err
	}

	now := s.Clock.Now()
	relationshipID := uuid.NewString()
	initiator := models.Participant{
		ID:             uuid.NewString(),
		Role:           models.RoleInitiator,
		Name:           initiatorName,
		RelationshipID: relationshipID,
		CreatedAt:      now,
	}
	relationship := models.Relationship{
		ID:          relationshipID,
		InitiatorID: initiator.ID,
		StartDate:   startDate,
		CoupleCode:  code,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Store.Put(ctx, ItemPath(models.ParticipantsTable, initiator.ID), initiator); err != nil {
		return nil, nil, apperrors.Unavailable("create relationship", err)
	}
	if err := s.Store.Put(ctx, ItemPath(models.RelationshipsTable, relationship.ID), relationship); err != nil {
		s.discardParticipant(ctx, initiator.ID)
		return nil, nil, apperrors.Unavailable("create relationship", err)
	}

	logger.WithRelationship(relationship.ID).Info().
		Str("initiatorId", initiator.ID).
		Msg("✅ relationship created")
	return &relationship, &initiator, nil
}

// RedeemCode pairs a new partner with the active relationship holding code.
// At most one redemption of a code ever succeeds.
func (s *PairingService) RedeemCode(ctx context.Context, code, partnerName string) (*models.Relationship, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	partnerName = strings.TrimSpace(partnerName)
	if partnerName == "" {
		return nil, apperrors.Validation("redeem", "partner name is required")
	}

	relationship, err := s.findRedeemable(ctx, code)
	if err != nil {
		return nil, err
	}

	partner := models.Participant{
		ID:             uuid.NewString(),
		Role:           models.RolePartner,
		Name:           partnerName,
		RelationshipID: relationship.ID,
		CreatedAt:      s.Clock.Now(),
	}
	if err := s.Store.Put(ctx, ItemPath(models.ParticipantsTable, partner.ID), partner); err != nil {
		return nil, apperrors.Unavailable("redeem", err)
	}

	linked, err := s.LinkPartner(ctx, relationship.ID, partner.ID)
	switch {
	case err == nil:
		return linked, nil
	case apperrors.Retryable(err):
		return nil, &LinkError{RelationshipID: relationship.ID, ParticipantID: partner.ID, Err: err}
	default:
		// Lost the race or the relationship went away: the profile has no home.
		s.discardParticipant(ctx, partner.ID)
		return nil, err
	}
}

// findRedeemable resolves a code to the relationship a redemption should
// claim. Colliding codes resolve to the oldest unclaimed relationship.
func (s *PairingService) findRedeemable(ctx context.Context, code string) (*models.Relationship, error) {
	var matches []models.Relationship
	if err := s.Store.Query(ctx, models.RelationshipsTable, "coupleCode", code, &matches); err != nil {
		return nil, apperrors.Unavailable("redeem", err)
	}

	var active, open []models.Relationship
	for _, rel := range matches {
		if !rel.IsActive {
			continue
		}
		active = append(active, rel)
		if rel.PartnerID == "" {
			open = append(open, rel)
		}
	}
	if len(active) == 0 {
		return nil, apperrors.NotFound("redeem", "no active relationship for code %s", code)
	}
	if len(open) == 0 {
		return nil, apperrors.AlreadyRedeemed("redeem", "code %s has already been redeemed", code)
	}
	if len(active) > 1 {
		logger.Get().Warn().Str("coupleCode", code).Int("matches", len(active)).Msg("⚠️ couple code collision")
	}

	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	return &open[0], nil
}

// LinkPartner attaches an existing partner profile to a relationship with a
// compare-and-swap on partnerId. Relinking the same participant succeeds,
// which makes the call safe to retry after a LinkError.
func (s *PairingService) LinkPartner(ctx context.Context, relationshipID, participantID string) (*models.Relationship, error) {
	if relationshipID == "" || participantID == "" {
		return nil, apperrors.Validation("link partner", "relationship id and participant id are required")
	}

	participant, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant.RelationshipID != relationshipID || participant.Role != models.RolePartner {
		return nil, apperrors.Validation("link partner", "participant %s is not a partner of relationship %s", participantID, relationshipID)
	}

	err = s.Store.UpdateFields(ctx, ItemPath(models.RelationshipsTable, relationshipID),
		map[string]any{
			"partnerId": participantID,
			"updatedAt": s.Clock.Now(),
		},
		MustExist(),
		IfField("isActive", false, true),
		IfField("partnerId", true, "", participantID),
	)
	if errors.Is(err, ErrConditionFailed) {
		current, getErr := s.GetRelationship(ctx, relationshipID)
		if getErr != nil {
			return nil, getErr
		}
		if !current.IsActive {
			return nil, apperrors.NotFound("link partner", "relationship %s is no longer active", relationshipID)
		}
		return nil, apperrors.AlreadyRedeemed("link partner", "relationship %s already has a partner", relationshipID)
	}
	if err != nil {
		return nil, apperrors.Unavailable("link partner", err)
	}

	linked, err := s.GetRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	logger.WithRelationship(relationshipID).Info().Str("partnerId", participantID).Msg("💞 partner linked")
	return linked, nil
}

func (s *PairingService) GetRelationship(ctx context.Context, id string) (*models.Relationship, error) {
	if id == "" {
		return nil, apperrors.Validation("get relationship", "relationship id is required")
	}
	var rel models.Relationship
	found, err := s.Store.Get(ctx, ItemPath(models.RelationshipsTable, id), &rel)
	if err != nil {
		return nil, apperrors.Unavailable("get relationship", err)
	}
	if !found {
		return nil, apperrors.NotFound("get relationship", "relationship %s", id)
	}
	return &rel, nil
}

func (s *PairingService) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	if id == "" {
		return nil, apperrors.Validation("get participant", "participant id is required")
	}
	var p models.Participant
	found, err := s.Store.Get(ctx, ItemPath(models.ParticipantsTable, id), &p)
	if err != nil {
		return nil, apperrors.Unavailable("get participant", err)
	}
	if !found {
		return nil, apperrors.NotFound("get participant", "participant %s", id)
	}
	return &p, nil
}

// ListActive returns every active relationship, paired or not.
func (s *PairingService) ListActive(ctx context.Context) ([]models.Relationship, error) {
	var rels []models.Relationship
	if err := s.Store.Query(ctx, models.RelationshipsTable, "isActive", true, &rels); err != nil {
		return nil, apperrors.Unavailable("list relationships", err)
	}
	return rels, nil
}

// UpdateNotificationHandle stores the push target for a participant. An
// empty handle clears it.
func (s *PairingService) UpdateNotificationHandle(ctx context.Context, participantID, handle string) error {
	if participantID == "" {
		return apperrors.Validation("update notification handle", "participant id is required")
	}
	var value any
	if handle = strings.TrimSpace(handle); handle != "" {
		value = handle
	}
	err := s.Store.UpdateFields(ctx, ItemPath(models.ParticipantsTable, participantID),
		map[string]any{"deviceToken": value}, MustExist())
	return apperrors.Unavailable("update notification handle", err)
}

// Deactivate closes a relationship. Deliveries stop and its code can no
// longer be redeemed.
func (s *PairingService) Deactivate(ctx context.Context, relationshipID string) error {
	if relationshipID == "" {
		return apperrors.Validation("deactivate", "relationship id is required")
	}
	err := s.Store.UpdateFields(ctx, ItemPath(models.RelationshipsTable, relationshipID),
		map[string]any{"isActive": false, "updatedAt": s.Clock.Now()}, MustExist())
	if err != nil {
		return apperrors.Unavailable("deactivate", err)
	}
	logger.WithRelationship(relationshipID).Info().Msg("relationship deactivated")
	return nil
}

func (s *PairingService) discardParticipant(ctx context.Context, id string) {
	if err := s.Store.Delete(context.WithoutCancel(ctx), ItemPath(models.ParticipantsTable, id)); err != nil {
		logger.Get().Warn().Err(err).Str("participantId", id).Msg("⚠️ failed to discard orphan participant")
	}
}
