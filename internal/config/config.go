// Package config loads the framework configuration: engine parameters,
// DNP3 origins and point declarations, from a TOML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"rvpf/internal/dnp3/conn"
	"rvpf/internal/point"
	"rvpf/internal/rpn"
)

// Config is the root of the configuration file.
type Config struct {
	Engine  Engine
	Origins []Origin `toml:"origin"`
	Points  []Point  `toml:"point"`
}

// Engine carries the compute-engine parameters.
type Engine struct {
	LoopLimit int
	TimeZone  string
	MacroDef  map[string]string
}

// Params flattens the engine section into the parameter map the engine
// consumes.
func (e Engine) Params() map[string]string {
	params := map[string]string{}
	if e.LoopLimit > 0 {
		params[rpn.ParamLoopLimit] = strconv.Itoa(e.LoopLimit)
	}
	if e.TimeZone != "" {
		params[rpn.ParamTimeZone] = e.TimeZone
	}
	for name, body := range e.MacroDef {
		params[rpn.ParamMacroDef+name] = body
	}
	return params
}

// Origin is one DNP3 remote origin and its connection attributes.
type Origin struct {
	Name             string
	TCPAddress       []string
	UDPAddress       []string
	TCPPort          int
	UDPPort          int
	SerialPort       string
	SerialSpeed      int
	LogicalDevice    []string
	ConnectTimeout   string
	ReplyTimeout     string
	KeepAliveTimeout string
	MaxFragmentSize  int
	LocalAddress     int
	Master           bool
}

// Wildcard reports whether the origin accepts any remote address.
func (o *Origin) Wildcard() bool {
	for _, address := range o.TCPAddress {
		if address == "*" {
			return true
		}
	}
	return false
}

// Devices parses the LogicalDevice attributes: "name:address" entries or
// bare addresses.
func (o *Origin) Devices() (map[string]uint16, error) {
	devices := map[string]uint16{}
	for _, entry := range o.LogicalDevice {
		name, addressText, found := strings.Cut(entry, ":")
		if !found {
			addressText = name
			name = ""
		}
		address, err := strconv.ParseUint(strings.TrimSpace(addressText), 0, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "logical device %q", entry)
		}
		if address > 0xFFFC {
			return nil, errors.Errorf("logical device %q: address in the reserved range", entry)
		}
		devices[strings.TrimSpace(name)] = uint16(address)
	}
	return devices, nil
}

// ConnConfig converts the origin attributes to the connection settings.
func (o *Origin) ConnConfig() (conn.Config, error) {
	config := conn.Config{
		LocalAddress: uint16(o.LocalAddress),
		MaxFragment:  o.MaxFragmentSize,
		Master:       o.Master,
	}
	var err error
	if config.ConnectTimeout, err = duration(o.ConnectTimeout); err != nil {
		return config, errors.Wrap(err, "ConnectTimeout")
	}
	if config.ReplyTimeout, err = duration(o.ReplyTimeout); err != nil {
		return config, errors.Wrap(err, "ReplyTimeout")
	}
	if config.KeepAlive, err = duration(o.KeepAliveTimeout); err != nil {
		return config, errors.Wrap(err, "KeepAliveTimeout")
	}
	return config, nil
}

func duration(text string) (time.Duration, error) {
	if text == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(text); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(text)
}

// Point is one point declaration.
type Point struct {
	Name          string
	UUID          string
	PointType     string
	DataType      string
	Index         int
	StartIndex    int
	StopIndex     int
	LogicalDevice string
	Origin        string
	Transform     string
	Param         []string
}

// Build converts the declaration into a point identity.
func (p *Point) Build() (*point.Point, error) {
	built := &point.Point{Name: p.Name, Device: p.LogicalDevice}
	if p.UUID != "" {
		parsed, err := uuid.Parse(p.UUID)
		if err != nil {
			return nil, errors.Wrapf(err, "point %q", p.Name)
		}
		built.UUID = parsed
	} else {
		built.UUID = uuid.New()
	}
	if p.PointType != "" {
		pointType, ok := point.TypeFromName(p.PointType)
		if !ok {
			return nil, errors.Errorf("point %q: unknown PointType %q", p.Name, p.PointType)
		}
		built.Type = pointType
	}
	if p.DataType != "" {
		dataType, ok := point.DataTypeFromName(p.DataType)
		if !ok {
			return nil, errors.Errorf("point %q: unknown DataType %q", p.Name, p.DataType)
		}
		built.DataType = dataType
	}
	switch {
	case p.StartIndex != 0 || p.StopIndex != 0:
		if p.StopIndex < p.StartIndex {
			return nil, errors.Errorf("point %q: StopIndex below StartIndex", p.Name)
		}
		built.Index = uint32(p.StartIndex)
		built.StopIndex = uint32(p.StopIndex)
	default:
		built.Index = uint32(p.Index)
		built.StopIndex = uint32(p.Index)
	}
	return built, nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(raw)
}

// Parse decodes and validates configuration bytes.
func Parse(raw []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	for i := range c.Origins {
		origin := &c.Origins[i]
		devices, err := origin.Devices()
		if err != nil {
			return errors.Wrapf(err, "origin %q", origin.Name)
		}
		// A wildcard remote is exclusive: with several declared
		// remotes the match would be ambiguous.
		if origin.Wildcard() && len(devices) > 1 {
			return errors.Errorf(
				"origin %q: wildcard address with multiple logical devices", origin.Name)
		}
		if _, err := origin.ConnConfig(); err != nil {
			return errors.Wrapf(err, "origin %q", origin.Name)
		}
	}
	for i := range c.Points {
		if _, err := c.Points[i].Build(); err != nil {
			return err
		}
	}
	return nil
}
