package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tolelom/tolmarket/events"
)

func TestEmitterDeliversByType(t *testing.T) {
	em := events.NewEmitter()
	var got []events.EventType
	em.Subscribe(func(ev events.Event) { got = append(got, ev.Type) }, events.SettlementEvents...)

	em.Emit(events.Event{Type: events.EventMarketList})
	em.Emit(events.Event{Type: events.EventMarketBuy})
	em.Emit(events.Event{Type: events.EventBidAccepted})

	assert.Equal(t, []events.EventType{events.EventMarketBuy, events.EventBidAccepted}, got)
}

func TestEmitterSurvivesPanickingHandler(t *testing.T) {
	em := events.NewEmitter()
	delivered := false
	em.Subscribe(func(events.Event) { panic("boom") }, events.EventOfferMade)
	em.Subscribe(func(events.Event) { delivered = true }, events.EventOfferMade)

	assert.NotPanics(t, func() { em.Emit(events.Event{Type: events.EventOfferMade}) })
	assert.True(t, delivered)
}

func TestNilEmitterDrops(t *testing.T) {
	var em *events.Emitter
	assert.NotPanics(t, func() { em.Emit(events.Event{Type: events.EventBlockCommit}) })
}
