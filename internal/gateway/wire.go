// Package gateway implements the exchange's external TCP wire protocol:
// a small length-prefixed binary framing carrying new-order, cancel,
// modify and query requests in, and acknowledgement/trade/rejection
// reports back out. It is the one component that ever sees raw bytes
// off the network; everything past decode talks to the OLM's typed Go
// API.
package gateway

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/olm"
)

// MessageType tags an inbound request frame.
type MessageType uint8

const (
	MsgHeartbeat MessageType = iota
	MsgNewOrder
	MsgCancelOrder
	MsgModifyOrder
	MsgQueryOrder
)

// ReportType tags an outbound response frame.
type ReportType uint8

const (
	RepHeartbeat ReportType = iota
	RepAck
	RepReject
	RepRetryable
	RepFatal
	RepMalformed
)

var (
	ErrShortMessage = errors.New("gateway: message too short")
	ErrUnknownType  = errors.New("gateway: unknown message type")
	ErrBadDecimal   = errors.New("gateway: malformed decimal field")
)

// --- primitive field encoding ------------------------------------------
//
// Strings (symbol, participant, client order id, decimal values encoded
// as their canonical string form) are length-prefixed with a single
// byte, applied uniformly to every variable-length field.

func putString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func takeString(msg []byte) (string, []byte, error) {
	if len(msg) < 1 {
		return "", nil, ErrShortMessage
	}
	n := int(msg[0])
	msg = msg[1:]
	if len(msg) < n {
		return "", nil, ErrShortMessage
	}
	return string(msg[:n]), msg[n:], nil
}

func putDecimal(buf []byte, d decimal.Decimal) []byte {
	return putString(buf, d.String())
}

func takeDecimal(msg []byte) (decimal.Decimal, []byte, error) {
	s, rest, err := takeString(msg)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	if s == "" {
		return decimal.Decimal{}, rest, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, nil, ErrBadDecimal
	}
	return d, rest, nil
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func takeUint64(msg []byte) (uint64, []byte, error) {
	if len(msg) < 8 {
		return 0, nil, ErrShortMessage
	}
	return binary.BigEndian.Uint64(msg[:8]), msg[8:], nil
}

func putByte(buf []byte, v byte) []byte { return append(buf, v) }

func takeByte(msg []byte) (byte, []byte, error) {
	if len(msg) < 1 {
		return 0, nil, ErrShortMessage
	}
	return msg[0], msg[1:], nil
}

// putTime encodes a time as Unix nanoseconds, 0 for the zero time.
func putTime(buf []byte, t time.Time) []byte {
	var nanos uint64
	if !t.IsZero() {
		nanos = uint64(t.UnixNano())
	}
	return putUint64(buf, nanos)
}

func takeTime(msg []byte) (time.Time, []byte, error) {
	nanos, rest, err := takeUint64(msg)
	if err != nil {
		return time.Time{}, nil, err
	}
	if nanos == 0 {
		return time.Time{}, rest, nil
	}
	return time.Unix(0, int64(nanos)), rest, nil
}

// --- request decoding ---------------------------------------------------

// DecodeRequest parses one inbound frame (already stripped of its length
// prefix) and returns the MessageType plus the typed payload: a
// *olm.SubmitRequest, a *cancelParams, a *modifyParams, or a
// *queryParams, according to the type tag (nil for a heartbeat).
func DecodeRequest(msg []byte) (MessageType, any, error) {
	kind, msg, err := takeByte(msg)
	if err != nil {
		return 0, nil, err
	}
	switch MessageType(kind) {
	case MsgHeartbeat:
		return MsgHeartbeat, nil, nil
	case MsgNewOrder:
		req, err := decodeNewOrder(msg)
		return MsgNewOrder, req, err
	case MsgCancelOrder:
		p, err := decodeCancel(msg)
		return MsgCancelOrder, p, err
	case MsgModifyOrder:
		p, err := decodeModify(msg)
		return MsgModifyOrder, p, err
	case MsgQueryOrder:
		p, err := decodeQuery(msg)
		return MsgQueryOrder, p, err
	default:
		return 0, nil, ErrUnknownType
	}
}

type cancelParams struct {
	Participant common.Participant
	Symbol      common.Symbol
	OrderID     uint64
}

type queryParams struct {
	Participant common.Participant
	Symbol      common.Symbol
	OrderID     uint64
}

func decodeNewOrder(msg []byte) (*olm.SubmitRequest, error) {
	var (
		participant, symbol, clientID string
		sideB, typeB, tifB             byte
		err                            error
	)
	participant, msg, err = takeString(msg)
	if err != nil {
		return nil, err
	}
	symbol, msg, err = takeString(msg)
	if err != nil {
		return nil, err
	}
	sideB, msg, err = takeByte(msg)
	if err != nil {
		return nil, err
	}
	typeB, msg, err = takeByte(msg)
	if err != nil {
		return nil, err
	}
	tifB, msg, err = takeByte(msg)
	if err != nil {
		return nil, err
	}
	clientID, msg, err = takeString(msg)
	if err != nil {
		return nil, err
	}

	req := &olm.SubmitRequest{
		Participant:   common.Participant(participant),
		Symbol:        common.Symbol(symbol),
		Side:          common.Side(sideB),
		Type:          common.OrderType(typeB),
		TIF:           common.TimeInForce(tifB),
		ClientOrderID: clientID,
	}
	if req.LimitPrice, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.StopPrice, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.TrailAmount, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.TrailPercent, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.Quantity, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.DisplayedQuantity, msg, err = takeDecimal(msg); err != nil {
		return nil, err
	}
	if req.ExpireAt, msg, err = takeTime(msg); err != nil {
		return nil, err
	}
	if req.OCOSiblingID, _, err = takeUint64(msg); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeCancel(msg []byte) (*cancelParams, error) {
	participant, msg, err := takeString(msg)
	if err != nil {
		return nil, err
	}
	symbol, msg, err := takeString(msg)
	if err != nil {
		return nil, err
	}
	orderID, _, err := takeUint64(msg)
	if err != nil {
		return nil, err
	}
	return &cancelParams{
		Participant: common.Participant(participant),
		Symbol:      common.Symbol(symbol),
		OrderID:     orderID,
	}, nil
}

func decodeQuery(msg []byte) (*queryParams, error) {
	p, err := decodeCancel(msg)
	if err != nil {
		return nil, err
	}
	return (*queryParams)(p), nil
}

// modifyParams pairs a decoded ModifyRequest with the symbol it targets,
// since OLM.Modify takes the symbol as a separate argument.
type modifyParams struct {
	Symbol common.Symbol
	Req    *olm.ModifyRequest
}

func decodeModify(msg []byte) (*modifyParams, error) {
	participant, msg, err := takeString(msg)
	if err != nil {
		return nil, err
	}
	symbol, msg, err := takeString(msg)
	if err != nil {
		return nil, err
	}
	orderID, msg, err := takeUint64(msg)
	if err != nil {
		return nil, err
	}
	hasPrice, msg, err := takeByte(msg)
	if err != nil {
		return nil, err
	}
	var newPrice *decimal.Decimal
	if hasPrice != 0 {
		p, rest, err := takeDecimal(msg)
		if err != nil {
			return nil, err
		}
		newPrice = &p
		msg = rest
	}
	hasQty, msg, err := takeByte(msg)
	if err != nil {
		return nil, err
	}
	var newQty *decimal.Decimal
	if hasQty != 0 {
		q, _, err := takeDecimal(msg)
		if err != nil {
			return nil, err
		}
		newQty = &q
	}
	return &modifyParams{
		Symbol: common.Symbol(symbol),
		Req: &olm.ModifyRequest{
			Participant: common.Participant(participant),
			OrderID:     orderID,
			NewPrice:    newPrice,
			NewQty:      newQty,
		},
	}, nil
}

// --- report encoding -----------------------------------------------------

// EncodeAck builds an acknowledgement frame carrying the resulting order
// snapshot and every trade the request produced.
func EncodeAck(o *common.Order, trades []common.Trade) []byte {
	buf := []byte{byte(RepAck)}
	buf = putUint64(buf, o.ID)
	buf = putString(buf, o.ClientID)
	buf = putByte(buf, byte(o.Status))
	buf = putDecimal(buf, o.TotalQuantity)
	buf = putDecimal(buf, o.FilledQuantity)
	buf = putDecimal(buf, o.LimitPrice)
	buf = putUint64(buf, uint64(len(trades)))
	for _, tr := range trades {
		buf = putUint64(buf, tr.ID)
		buf = putUint64(buf, tr.MakerOrderID)
		buf = putUint64(buf, tr.TakerOrderID)
		buf = putDecimal(buf, tr.Price)
		buf = putDecimal(buf, tr.Quantity)
		buf = putTime(buf, tr.Timestamp)
	}
	return buf
}

// EncodeReject builds a client-rejection frame.
func EncodeReject(kind common.RejectionKind, detail string) []byte {
	buf := []byte{byte(RepReject)}
	buf = putByte(buf, byte(kind))
	buf = putString(buf, detail)
	return buf
}

// EncodeRetryable builds a transient-condition frame; the client may
// resubmit once it clears.
func EncodeRetryable(kind common.RetryableKind) []byte {
	buf := []byte{byte(RepRetryable)}
	buf = putByte(buf, byte(kind))
	return buf
}

// EncodeFatal builds a frame reporting that the symbol is now halted.
func EncodeFatal(detail string) []byte {
	buf := []byte{byte(RepFatal)}
	buf = putString(buf, detail)
	return buf
}

func EncodeHeartbeat() []byte {
	return []byte{byte(RepHeartbeat)}
}

// EncodeMalformed builds a frame reporting that the request itself could
// not be decoded, distinct from a domain-level rejection of an
// otherwise well-formed order.
func EncodeMalformed(detail string) []byte {
	buf := []byte{byte(RepMalformed)}
	return putString(buf, detail)
}
