package export

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/Brownie44l1/flower-cnn/internal/nn"
)

const (
	checkpointMagic   = "FLWRCKPT"
	checkpointVersion = uint32(1)
)

type checkpointHeader struct {
	Model  string            `json:"model"`
	Layers []checkpointLayer `json:"layers"`
}

type checkpointLayer struct {
	Name   string            `json:"name"`
	Params []checkpointParam `json:"params"`
}

type checkpointParam struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

func parameterised(m *nn.Sequential) []nn.Layer {
	var layers []nn.Layer
	for _, l := range m.Layers() {
		if len(l.Params()) > 0 {
			layers = append(layers, l)
		}
	}
	return layers
}

// SaveCheckpoint writes the magic, version, a JSON header describing every
// parameter, then all parameter values as little-endian float32 in header order.
func SaveCheckpoint(w io.Writer, m *nn.Sequential) error {
	header := checkpointHeader{Model: m.Name()}
	layers := parameterised(m)
	for _, l := range layers {
		entry := checkpointLayer{Name: l.Name()}
		for _, p := range l.Params() {
			entry.Params = append(entry.Params, checkpointParam{Name: p.Name, Shape: p.Value.Shape().Dims()})
		}
		header.Layers = append(header.Layers, entry)
	}

	encoded, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("error encoding checkpoint header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(checkpointMagic)
	binary.Write(bw, binary.LittleEndian, checkpointVersion)
	binary.Write(bw, binary.LittleEndian, uint32(len(encoded)))
	bw.Write(encoded)
	for _, l := range layers {
		for _, p := range l.Params() {
			if err := binary.Write(bw, binary.LittleEndian, p.Value.DataPtr()); err != nil {
				return fmt.Errorf("error writing %s/%s: %w", l.Name(), p.Name, err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint into the built model m. Parameterised
// layers are matched by position and every shape must agree.
func LoadCheckpoint(r io.Reader, m *nn.Sequential) error {
	br := bufio.NewReader(r)

	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("error reading checkpoint magic: %w", err)
	}
	if string(magic) != checkpointMagic {
		return fmt.Errorf("not a checkpoint file (magic %q)", magic)
	}

	var version, headerLen uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("error reading checkpoint version: %w", err)
	}
	if version != checkpointVersion {
		return fmt.Errorf("unsupported checkpoint version %d", version)
	}
	if err := binary.Read(br, binary.LittleEndian, &headerLen); err != nil {
		return fmt.Errorf("error reading checkpoint header length: %w", err)
	}

	encoded := make([]byte, headerLen)
	if _, err := io.ReadFull(br, encoded); err != nil {
		return fmt.Errorf("error reading checkpoint header: %w", err)
	}
	var header checkpointHeader
	if err := json.Unmarshal(encoded, &header); err != nil {
		return fmt.Errorf("error decoding checkpoint header: %w", err)
	}

	layers := parameterised(m)
	if len(layers) != len(header.Layers) {
		return fmt.Errorf("checkpoint has %d parameterised layers, model has %d", len(header.Layers), len(layers))
	}
	for i, l := range layers {
		saved := header.Layers[i]
		if saved.Name != l.Name() {
			slog.Warn("checkpoint layer name differs", "checkpoint", saved.Name, "model", l.Name())
		}
		params := l.Params()
		if len(params) != len(saved.Params) {
			return fmt.Errorf("layer %s: checkpoint has %d params, model has %d", l.Name(), len(saved.Params), len(params))
		}
		for j, p := range params {
			if !slices.Equal(saved.Params[j].Shape, p.Value.Shape().Dims()) {
				return fmt.Errorf("layer %s/%s: checkpoint shape %v does not match model shape %v",
					l.Name(), p.Name, saved.Params[j].Shape, p.Value.Shape().Dims())
			}
		}
	}

	for _, l := range layers {
		for _, p := range l.Params() {
			if err := binary.Read(br, binary.LittleEndian, p.Value.DataPtr()); err != nil {
				return fmt.Errorf("error reading %s/%s: %w", l.Name(), p.Name, err)
			}
		}
	}

	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after checkpoint values")
	}
	return nil
}
