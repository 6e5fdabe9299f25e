package gateway

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
	"fenrir/internal/metrics"
	"fenrir/internal/olm"
)

// maxFrameSize bounds a single request frame; anything larger is a
// malformed or hostile client and the connection is dropped.
const maxFrameSize = 64 * 1024

const defaultRequestTimeout = 5 * time.Second

// Server is the exchange's TCP front door: it frames and unframes the
// wire protocol in wire.go and translates every request into a call
// against an OLM, one goroutine per connection, supervised by a tomb so
// a listener failure brings the whole gateway down cleanly instead of
// leaking goroutines.
type Server struct {
	address string
	olm     *olm.OLM
	metrics *metrics.Metrics

	listener net.Listener
	t        *tomb.Tomb
}

func New(address string, o *olm.OLM, m *metrics.Metrics) *Server {
	return &Server{address: address, olm: o, metrics: m}
}

// Run starts the listener and blocks, serving connections, until ctx is
// cancelled, Shutdown is called, or the accept loop fails. Connection
// handlers never kill the tomb; a failing connection only closes itself.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)
	s.t = t

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	s.listener = listener
	log.Info().Str("address", s.address).Msg("gateway listening")

	t.Go(func() error {
		<-t.Dying()
		return s.listener.Close()
	})

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
					return fmt.Errorf("gateway: accept: %w", err)
				}
			}
			if s.metrics != nil {
				s.metrics.ClientConnected()
			}
			t.Go(func() error {
				s.handleConnection(t, conn)
				return nil
			})
		}
	})

	return t.Wait()
}

func (s *Server) Shutdown() {
	if s.t != nil {
		s.t.Kill(nil)
	}
}

// handleConnection owns one client's connection end to end: it reads
// length-prefixed frames until the connection closes or the tomb dies,
// decodes each, dispatches it against the OLM, and writes back exactly
// one framed report per request.
func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	connID := uuid.NewString()
	log.Info().Str("address", addr).Str("conn", connID).Msg("gateway client connected")
	defer func() {
		_ = conn.Close()
		if s.metrics != nil {
			s.metrics.ClientDisconnected()
		}
		log.Info().Str("address", addr).Str("conn", connID).Msg("gateway client disconnected")
	}()

	r := bufio.NewReader(conn)
	for {
		select {
		case <-t.Dying():
			return
		default:
		}

		frame, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Str("address", addr).Str("conn", connID).Msg("gateway: frame read failed")
			}
			return
		}

		resp := s.dispatch(conn, frame)
		if resp == nil {
			continue
		}
		if err := writeFrame(conn, resp); err != nil {
			log.Warn().Err(err).Str("address", addr).Str("conn", connID).Msg("gateway: frame write failed")
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, frame []byte) []byte {
	kind, payload, err := DecodeRequest(frame)
	if err != nil {
		return EncodeMalformed(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveIngressDuration(time.Since(start).Seconds())
		}
	}()

	switch kind {
	case MsgHeartbeat:
		return EncodeHeartbeat()
	case MsgNewOrder:
		req := payload.(*olm.SubmitRequest)
		order, trades, err := s.olm.Submit(ctx, *req)
		return s.report(order, trades, err)
	case MsgCancelOrder:
		p := payload.(*cancelParams)
		order, err := s.olm.Cancel(ctx, p.Symbol, p.Participant, p.OrderID)
		return s.report(order, nil, err)
	case MsgModifyOrder:
		p := payload.(*modifyParams)
		order, trades, err := s.olm.Modify(ctx, p.Symbol, *p.Req)
		return s.report(order, trades, err)
	case MsgQueryOrder:
		p := payload.(*queryParams)
		order, err := s.olm.Query(ctx, p.Symbol, p.Participant, p.OrderID)
		return s.report(order, nil, err)
	default:
		return EncodeReject(common.UnknownOrder, "unrecognized request")
	}
}

func (s *Server) report(order *common.Order, trades []common.Trade, err error) []byte {
	if err != nil {
		switch e := err.(type) {
		case *common.ClientRejection:
			if s.metrics != nil && order != nil {
				s.metrics.OrderRejected(string(order.Symbol), e.Kind.String())
			}
			return EncodeReject(e.Kind, e.Detail)
		case *common.RetryableError:
			return EncodeRetryable(e.Kind)
		case *common.FatalError:
			if s.metrics != nil && order != nil {
				s.metrics.EngineHalted(string(order.Symbol), e.Kind.String())
			}
			return EncodeFatal(e.Error())
		default:
			return EncodeReject(common.UnknownOrder, err.Error())
		}
	}
	if s.metrics != nil && order != nil {
		s.metrics.OrderAccepted(string(order.Symbol), order.Type.String())
		for _, tr := range trades {
			price, _ := tr.Price.Float64()
			qty, _ := tr.Quantity.Float64()
			s.metrics.TradeExecuted(string(order.Symbol), price, qty)
		}
	}
	return EncodeAck(order, trades)
}

// readFrame reads one 4-byte big-endian length prefix followed by that
// many bytes. A single connection Read is never guaranteed to return an
// entire message over TCP; framing by length prefix lets bufio.Reader
// handle however many underlying reads a frame actually takes.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("gateway: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
