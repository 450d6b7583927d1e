package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "frontdesk.dispositions"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes dispositions to Subject and call logs to Subject + ".calls".
type NATS struct {
	conn    publisher
	closer  func()
	subject string
}

// ConnectNATS dials url and returns a publisher bound to subject.
func ConnectNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("frontdesk"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewNATS(nc, subject)
	p.closer = nc.Close
	return p, nil
}

func NewNATS(conn publisher, subject string) *NATS {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Subject() string { return n.subject }

func (n *NATS) Dispatch(_ context.Context, ev Event) error {
	return n.publish(n.subject, ev)
}

// CallLogged announces a stored call log entry.
func (n *NATS) CallLogged(_ context.Context, e calllog.Entry) error {
	return n.publish(n.subject+".calls", e)
}

func (n *NATS) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return errorsx.Wrapf(errorsx.ReasonDispatchPublish, "publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Close() {
	if n.closer != nil {
		n.closer()
	}
}

// AnnouncingRecorder stores call logs and then announces them. A failed
// announcement does not fail the insert.
type AnnouncingRecorder struct {
	calllog.Recorder
	Announcer interface {
		CallLogged(ctx context.Context, e calllog.Entry) error
	}
	OnError func(err error)
}

func (r AnnouncingRecorder) InsertCallLog(ctx context.Context, e calllog.Entry) error {
	if err := r.Recorder.InsertCallLog(ctx, e); err != nil {
		return err
	}
	if r.Announcer == nil {
		return nil
	}
	if err := r.Announcer.CallLogged(ctx, e); err != nil && r.OnError != nil {
		r.OnError(err)
	}
	return nil
}
