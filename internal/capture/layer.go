package capture

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// ChunkLayerNum identifies the chunk layer in the gopacket catalog
	ChunkLayerNum = 2147

	// LinkTypeDRI is the pcap link type of drilink captures, LINKTYPE_USER0.
	// Each packet is one direction byte followed by the raw line bytes.
	LinkTypeDRI layers.LinkType = 147
)

// Direction tells which way a chunk of line bytes travelled
type Direction uint8

const (
	// FromMonitor marks bytes received from the monitor
	FromMonitor Direction = 0
	// ToMonitor marks bytes sent to the monitor, such as requests
	ToMonitor Direction = 1
)

func (d Direction) String() string {
	switch d {
	case FromMonitor:
		return "rx"
	case ToMonitor:
		return "tx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// ChunkLayer is one captured read or write on the link
type ChunkLayer struct {
	layers.BaseLayer
	Direction Direction
}

// ChunkLayerType is registered so captures can be walked with a
// gopacket.PacketSource.
var ChunkLayerType = gopacket.RegisterLayerType(ChunkLayerNum,
	gopacket.LayerTypeMetadata{Name: "DRIChunk", Decoder: gopacket.DecodeFunc(decodeChunkLayer)})

// LayerType returns ChunkLayerType
func (c *ChunkLayer) LayerType() gopacket.LayerType {
	return ChunkLayerType
}

// SerializeTo prepends the direction byte to the payload already in b
func (c *ChunkLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	hdr, err := b.PrependBytes(1)
	if err != nil {
		return err
	}
	hdr[0] = uint8(c.Direction)
	return nil
}

// DecodeFromBytes splits a packet into direction and line bytes
func (c *ChunkLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 1 {
		df.SetTruncated()
		return errors.New("capture: empty chunk packet")
	}
	if data[0] > uint8(ToMonitor) {
		return fmt.Errorf("capture: unknown direction %d", data[0])
	}

	c.BaseLayer = layers.BaseLayer{
		Contents: data[:1],
		Payload:  data[1:],
	}
	c.Direction = Direction(data[0])
	return nil
}

func decodeChunkLayer(data []byte, p gopacket.PacketBuilder) error {
	c := &ChunkLayer{}
	if err := c.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(c)
	return nil
}
