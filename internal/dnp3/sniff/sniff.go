// Package sniff decodes captured DNP3 traffic into its link, transport
// and application breakdown, for diagnostics. It reads live interfaces
// or pcap files and picks DNP3 payloads out of TCP and UDP packets.
package sniff

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"

	"rvpf/internal/dnp3"
	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/transport"
)

// Summary is the decoded breakdown of one DNP3 frame.
type Summary struct {
	Source      uint16
	Destination uint16
	Link        dnp3.Control
	Transport   *transport.Header
	AppControl  *app.Control
	Function    *app.FunctionCode
	IIN         *app.IIN
	DataSize    int
}

func (s *Summary) String() string {
	text := fmt.Sprintf("%04X->%04X link[%s] %d bytes", s.Source, s.Destination, s.Link, s.DataSize)
	if s.Transport != nil {
		text += fmt.Sprintf(" transport[%s]", *s.Transport)
	}
	if s.Function != nil {
		text += fmt.Sprintf(" app[%s %s]", *s.Function, *s.AppControl)
	}
	if s.IIN != nil {
		text += fmt.Sprintf(" %s", *s.IIN)
	}
	return text
}

// DecodeFrameBytes summarizes one serialized frame: the link header, the
// transport octet and, on a first segment, the application header.
func DecodeFrameBytes(data []byte) (*Summary, error) {
	frame, _, err := dnp3.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		Source:      frame.Source,
		Destination: frame.Destination,
		Link:        frame.Control,
		DataSize:    len(frame.Data),
	}
	if len(frame.Data) == 0 {
		return summary, nil
	}
	header := transport.Header(frame.Data[0])
	summary.Transport = &header
	if !header.Fir() || len(frame.Data) < 3 {
		return summary, nil
	}
	control := app.Control(frame.Data[1])
	function := app.FunctionCode(frame.Data[2])
	summary.AppControl = &control
	summary.Function = &function
	if function.IsResponse() && len(frame.Data) >= 5 {
		iin := app.IIN(frame.Data[3]) | app.IIN(frame.Data[4])<<8
		summary.IIN = &iin
	}
	return summary, nil
}

// Sniffer pulls DNP3 frames out of a packet stream.
type Sniffer struct {
	handle *pcap.Handle
	out    io.Writer
}

// OpenFile opens a pcap capture file.
func OpenFile(path string, out io.Writer) (*Sniffer, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, errors.Wrap(err, "open capture")
	}
	return newSniffer(handle, out)
}

// OpenLive captures from a network interface.
func OpenLive(device string, out io.Writer) (*Sniffer, error) {
	handle, err := pcap.OpenLive(device, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrap(err, "open interface")
	}
	return newSniffer(handle, out)
}

func newSniffer(handle *pcap.Handle, out io.Writer) (*Sniffer, error) {
	filter := fmt.Sprintf("tcp port %d or udp port %d", 20000, 20000)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "set filter")
	}
	return &Sniffer{handle: handle, out: out}, nil
}

// Run decodes packets until the source is exhausted or closed, writing
// one summary line per frame.
func (s *Sniffer) Run() error {
	source := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	for packet := range source.Packets() {
		layer := packet.TransportLayer()
		if layer == nil {
			continue
		}
		payload := layer.LayerPayload()
		for len(payload) >= 2 {
			if payload[0] != dnp3.StartByte1 || payload[1] != dnp3.StartByte2 {
				payload = payload[1:]
				continue
			}
			summary, err := DecodeFrameBytes(payload)
			if err != nil {
				break
			}
			fmt.Fprintln(s.out, summary)
			_, consumed, _ := dnp3.DecodeFrame(payload)
			if consumed <= 0 {
				break
			}
			payload = payload[consumed:]
		}
	}
	return nil
}

// Close releases the capture handle.
func (s *Sniffer) Close() {
	s.handle.Close()
}
