package chesspresenter

import (
	"encoding/json"

	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/pkg/chessdto"
)

// Publisher fans a frame out to every viewer of a game. render is called
// once per viewer so hidden information can be withheld.
type Publisher interface {
	Publish(gameID string, render func(viewer string) ([]byte, error))
	Drop(gameID string)
}

// Presenter forwards registry notifications to the live feed.
type Presenter struct {
	f   *Formatter
	pub Publisher
}

var _ session.Observer = (*Presenter)(nil)

func NewPresenter(f *Formatter, pub Publisher) *Presenter {
	return &Presenter{f: f, pub: pub}
}

func (p *Presenter) SessionUpdated(snap session.Snapshot) {
	if p == nil || p.pub == nil {
		return
	}
	p.pub.Publish(snap.ID, func(viewer string) ([]byte, error) {
		return json.Marshal(chessdto.Event{Type: chessdto.EventState, Game: p.f.ToDTOState(snap, viewer)})
	})
}

func (p *Presenter) SessionSettled(rec domain.MatchRecord) {
	if p == nil || p.pub == nil {
		return
	}
	p.pub.Publish(rec.SessionID, func(viewer string) ([]byte, error) {
		m := ToDTOMatch(&rec, viewer)
		return json.Marshal(chessdto.Event{Type: chessdto.EventSettled, Match: &m})
	})
}

// SessionEvicted disconnects everyone still watching a removed game.
func (p *Presenter) SessionEvicted(id string) {
	if p == nil || p.pub == nil {
		return
	}
	p.pub.Drop(id)
}
