// Package turtleio is the production wiring for movement.World and
// fuel.Inventory: a line-delimited JSON request/response bridge to the
// actual turtle runtime, the way the teacher's RPC clients
// (api/client.go's DialRPC) exchange framed JSON requests over a
// transport instead of calling a local implementation directly.
package turtleio

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/fuel"
	"github.com/DannyDoesGraphics/auto-mine/internal/movement"
)

type request struct {
	ID   uint64                 `json:"id"`
	Op   string                 `json:"op"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type response struct {
	ID      uint64 `json:"id"`
	OK      bool   `json:"ok"`
	Blocked bool   `json:"blocked,omitempty"`
	Fuel    int    `json:"fuel,omitempty"`
	Slot    int    `json:"slot,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Count   int    `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

var faceNames = map[movement.Face]string{
	movement.FaceForward: "forward",
	movement.FaceUp:      "up",
	movement.FaceDown:    "down",
}

// Bridge implements both movement.World and fuel.Inventory against a
// single request/response stream: every call writes one JSON request
// line and blocks for the matching response line. The turtle-side runtime
// owns the actual hardware calls; this package only owns the framing.
type Bridge struct {
	mu     sync.Mutex
	nextID uint64
	enc    *json.Encoder
	dec    *json.Decoder
}

func NewBridge(r io.Reader, w io.Writer) *Bridge {
	return &Bridge{enc: json.NewEncoder(w), dec: json.NewDecoder(bufio.NewReader(r))}
}

func (b *Bridge) call(op string, args map[string]interface{}) (response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	req := request{ID: b.nextID, Op: op, Args: args}
	if err := b.enc.Encode(req); err != nil {
		return response{}, errors.Wrapf(err, "turtleio: send %s", op)
	}

	var resp response
	if err := b.dec.Decode(&resp); err != nil {
		return response{}, errors.Wrapf(err, "turtleio: receive %s", op)
	}
	if !resp.OK && resp.Error != "" {
		return resp, errors.Errorf("turtleio: %s failed: %s", op, resp.Error)
	}
	return resp, nil
}

func (b *Bridge) move(op string) (bool, error) {
	resp, err := b.call(op, nil)
	if err != nil {
		return false, err
	}
	return !resp.Blocked, nil
}

func (b *Bridge) MoveForward() (bool, error) { return b.move("move_forward") }
func (b *Bridge) MoveBack() (bool, error)     { return b.move("move_back") }
func (b *Bridge) MoveUp() (bool, error)       { return b.move("move_up") }
func (b *Bridge) MoveDown() (bool, error)     { return b.move("move_down") }

func (b *Bridge) TurnLeft() error {
	_, err := b.call("turn_left", nil)
	return err
}

func (b *Bridge) TurnRight() error {
	_, err := b.call("turn_right", nil)
	return err
}

func (b *Bridge) Detect(face movement.Face) (bool, error) {
	resp, err := b.call("detect", map[string]interface{}{"face": faceNames[face]})
	if err != nil {
		return false, err
	}
	return resp.Blocked, nil
}

func (b *Bridge) Dig(face movement.Face) error {
	_, err := b.call("dig", map[string]interface{}{"face": faceNames[face]})
	return err
}

func (b *Bridge) Attack(face movement.Face) error {
	_, err := b.call("attack", map[string]interface{}{"face": faceNames[face]})
	return err
}

func (b *Bridge) FuelLevel() (int, error) {
	resp, err := b.call("fuel_level", nil)
	if err != nil {
		return 0, err
	}
	return resp.Fuel, nil
}

// fuel.Inventory surface: suck/inspect/refuel/drop against the slot facing
// whatever the turtle is currently oriented towards (front).

func (b *Bridge) SuckFront() (bool, error) {
	resp, err := b.call("suck_front", nil)
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (b *Bridge) InspectSlot(slot int) (fuel.Slot, error) {
	resp, err := b.call("inspect_slot", map[string]interface{}{"slot": slot})
	if err != nil {
		return fuel.Slot{}, err
	}
	return fuel.Slot{Tag: resp.Tag, Count: resp.Count}, nil
}

func (b *Bridge) RefuelSlot(slot int) (bool, error) {
	resp, err := b.call("refuel_slot", map[string]interface{}{"slot": slot})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (b *Bridge) DropSlot(slot, count int) (bool, error) {
	resp, err := b.call("drop_slot", map[string]interface{}{"slot": slot, "count": count})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// SlotCount is fixed at 16, the standard turtle inventory size.
func (b *Bridge) SlotCount() int { return 16 }
