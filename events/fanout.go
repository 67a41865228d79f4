package events

import "github.com/JimRearick/camp-snackbar-pos-sub001/domain"

// Fanout publishes each event to every wrapped publisher in order.
type Fanout []Publisher

func NewFanout(pubs ...Publisher) Fanout {
	return Fanout(pubs)
}

func (f Fanout) Publish(ev domain.Event) {
	for _, p := range f {
		p.Publish(ev)
	}
}
