package polymarket

// markets.go handles discovery of the traded Up/Down round series.
//
// Recurring rounds live as Gamma events: one event per round, each with a
// single binary market whose outcomes are "Up"/"Down". FetchState picks the
// round in progress and the next one by their start/end times and maps them
// into the snapshot the strategy consumes.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/alvarohm/upbot/internal/domain"
)

const eventsPath = "/events"

// gammaEvent is one round of the series as Gamma returns it.
type gammaEvent struct {
	Slug      string        `json:"slug"`
	StartDate time.Time     `json:"startDate"`
	EndDate   time.Time     `json:"endDate"`
	Closed    bool          `json:"closed"`
	Markets   []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	// Gamma encodes these as JSON strings containing JSON arrays.
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
}

// MarketService implements ports.MarketProvider for one round series.
type MarketService struct {
	client *Client
	series string
	clock  func() time.Time
}

// NewMarketService creates a provider for the series with the given slug
// (e.g. "bitcoin-up-or-down").
func NewMarketService(client *Client, seriesSlug string) *MarketService {
	return &MarketService{client: client, series: seriesSlug, clock: time.Now}
}

// FetchState returns the current and next round with fresh prices.
func (s *MarketService) FetchState(ctx context.Context) (domain.MarketState, error) {
	url := fmt.Sprintf("%s%s?series_slug=%s&closed=false&order=startDate&ascending=true&limit=6",
		s.client.gammaBase, eventsPath, s.series)

	var events []gammaEvent
	if err := s.client.get(ctx, s.client.gammaLimiter, url, &events); err != nil {
		return domain.MarketState{}, fmt.Errorf("markets.FetchState: %w", err)
	}

	state := assembleState(events, s.clock())
	if state.Current == nil && state.Next == nil {
		slog.Warn("no open rounds found for series", "series", s.series)
	}
	return state, nil
}

// assembleState maps the open events onto the snapshot: the round whose
// window contains now becomes Current, the earliest future one Next.
func assembleState(events []gammaEvent, now time.Time) domain.MarketState {
	sort.Slice(events, func(i, j int) bool { return events[i].StartDate.Before(events[j].StartDate) })

	var state domain.MarketState
	for i := range events {
		ev := events[i]
		if ev.Closed || len(ev.Markets) == 0 {
			continue
		}
		round, ok := mapRound(ev)
		if !ok {
			slog.Debug("skipping malformed round event", "slug", ev.Slug)
			continue
		}

		switch {
		case !ev.StartDate.After(now) && ev.EndDate.After(now):
			if state.Current == nil {
				state.Current = round
				state.TimeToEnd = ev.EndDate.Sub(now)
			}
		case ev.StartDate.After(now):
			if state.Next == nil {
				state.Next = round
				state.TimeToStart = ev.StartDate.Sub(now)
			}
		}
	}
	return state
}

// mapRound extracts token ids and prices (cents) from the event's market.
// Outcome order in the arrays is not guaranteed, so tokens are matched by
// outcome name.
func mapRound(ev gammaEvent) (*domain.RoundMarket, bool) {
	m := ev.Markets[0]

	outcomes, err1 := decodeStringArray(m.Outcomes)
	prices, err2 := decodeStringArray(m.OutcomePrices)
	tokens, err3 := decodeStringArray(m.ClobTokenIDs)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}
	if len(outcomes) != 2 || len(prices) != 2 || len(tokens) != 2 {
		return nil, false
	}

	round := &domain.RoundMarket{Slug: ev.Slug}
	for i, outcome := range outcomes {
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			return nil, false
		}
		switch domain.Outcome(outcome) {
		case domain.OutcomeUp:
			round.UpTokenID = tokens[i]
			round.UpPrice = price * 100
		case domain.OutcomeDown:
			round.DownTokenID = tokens[i]
			round.DownPrice = price * 100
		default:
			return nil, false
		}
	}
	if round.UpTokenID == "" || round.DownTokenID == "" {
		return nil, false
	}
	return round, true
}

// decodeStringArray parses Gamma's string-encoded JSON arrays.
func decodeStringArray(s string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
