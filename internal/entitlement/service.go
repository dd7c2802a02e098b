// Package entitlement is the read model other parts of the application use
// to decide paid-feature access.
package entitlement

import (
	"context"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/internal/guard"
	"github.com/kaoriishige/adtown-ishige-sub000/internal/tracks"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
)

var labels = map[enums.LifecycleStage]string{
	enums.StageNone:            "Not subscribed",
	enums.StagePendingCheckout: "Awaiting card payment",
	enums.StagePendingInvoice:  "Awaiting invoice payment",
	enums.StageTrialing:        "Free trial",
	enums.StageActive:          "Active",
	enums.StagePausedByUser:    "Paused",
	enums.StagePastDue:         "Payment overdue",
	enums.StageCanceled:        "Canceled",
}

// IsEntitled reports whether the track grants paid-feature access.
func IsEntitled(track models.Track) bool {
	return guard.IsEntitled(track.LifecycleStage)
}

// StatusLabel is the human readable label of a stage.
func StatusLabel(stage enums.LifecycleStage) string {
	if label, ok := labels[stage]; ok {
		return label
	}
	return "Unknown"
}

// TrackView is the projection of one track.
type TrackView struct {
	ServiceType    enums.ServiceType    `json:"serviceType"`
	LifecycleStage enums.LifecycleStage `json:"lifecycleStage"`
	BillingCycle   enums.BillingCycle   `json:"billingCycle"`
	PaymentMethod  enums.PaymentMethod  `json:"paymentMethod"`
	IsEntitled     bool                 `json:"isEntitled"`
	StatusLabel    string               `json:"statusLabel"`
	TrialEndsAt    *time.Time           `json:"trialEndsAt,omitempty"`
	Version        int64                `json:"version"`
}

// AccountView gathers both tracks of an account.
type AccountView struct {
	AccountID   string    `json:"accountId"`
	Advertising TrackView `json:"advertising"`
	Recruiting  TrackView `json:"recruiting"`
	AnyEntitled bool      `json:"anyEntitled"`
}

// ViewOf projects a track.
func ViewOf(track models.Track) TrackView {
	return TrackView{
		ServiceType:    track.ServiceType,
		LifecycleStage: track.LifecycleStage,
		BillingCycle:   track.BillingCycle,
		PaymentMethod:  track.PaymentMethod,
		IsEntitled:     IsEntitled(track),
		StatusLabel:    StatusLabel(track.LifecycleStage),
		TrialEndsAt:    track.TrialEndsAt,
		Version:        track.Version,
	}
}

// AccountViewOf projects the tracks of one account. A service type without a
// track is reported as not subscribed.
func AccountViewOf(accountID string, list []models.Track) AccountView {
	view := AccountView{
		AccountID:   accountID,
		Advertising: emptyView(enums.ServiceTypeAdvertising),
		Recruiting:  emptyView(enums.ServiceTypeRecruiting),
	}
	for _, track := range list {
		switch track.ServiceType {
		case enums.ServiceTypeAdvertising:
			view.Advertising = ViewOf(track)
		case enums.ServiceTypeRecruiting:
			view.Recruiting = ViewOf(track)
		}
	}
	view.AnyEntitled = view.Advertising.IsEntitled || view.Recruiting.IsEntitled
	return view
}

func emptyView(svc enums.ServiceType) TrackView {
	return TrackView{
		ServiceType:    svc,
		LifecycleStage: enums.StageNone,
		BillingCycle:   enums.BillingCycleNone,
		PaymentMethod:  enums.PaymentMethodNone,
		StatusLabel:    StatusLabel(enums.StageNone),
	}
}

type Service struct {
	tracks tracks.Repository
}

func NewService(repo tracks.Repository) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "track repository required")
	}
	return &Service{tracks: repo}, nil
}

func (s *Service) AccountView(ctx context.Context, accountID string) (AccountView, error) {
	if accountID == "" {
		return AccountView{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	list, err := s.tracks.ListByAccount(ctx, accountID)
	if err != nil {
		return AccountView{}, err
	}
	return AccountViewOf(accountID, list), nil
}

func (s *Service) TrackView(ctx context.Context, accountID string, serviceType enums.ServiceType) (TrackView, error) {
	if !serviceType.IsValid() {
		return TrackView{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	track, err := s.tracks.Get(ctx, accountID, serviceType)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return emptyView(serviceType), nil
		}
		return TrackView{}, err
	}
	return ViewOf(*track), nil
}

// Entitled reports paid-feature access for one track.
func (s *Service) Entitled(ctx context.Context, accountID string, serviceType enums.ServiceType) (bool, error) {
	view, err := s.TrackView(ctx, accountID, serviceType)
	if err != nil {
		return false, err
	}
	return view.IsEntitled, nil
}
