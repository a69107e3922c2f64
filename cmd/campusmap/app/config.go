package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	OutputFile    string
	Format        ImageFormat
	FontFile      string
	DeviceID      string
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	Latitude      float64
	Longitude     float64
	Width         int
	NoAnnotations bool
	Verbose       bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  1024,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, from, to string
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontFile, "font", "", "Path to a TTF font used for labels")
	flag.StringVar(&c.DeviceID, "device", "", "Render only this device's trail")
	flag.StringVar(&from, "from", "", "Trail start time (RFC 3339)")
	flag.StringVar(&to, "to", "", "Trail end time (RFC 3339)")
	flag.Float64Var(&c.Latitude, "lat", 0, "Campus origin latitude (default campus when omitted)")
	flag.Float64Var(&c.Longitude, "lon", 0, "Campus origin longitude (default campus when omitted)")
	flag.IntVar(&c.Width, "w", 1024, "Output image width in pixels")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable zone and device labels")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.FontFile == "" && !c.NoAnnotations {
		err = errors.New("font file is required unless annotations are disabled")
	} else if c.Width < 256 {
		err = fmt.Errorf("image width %d is too small", c.Width)
	}

	if err == nil && from != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, from); err == nil {
			c.MinTimestamp = &t
		}
	}
	if err == nil && to != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, to); err == nil {
			c.MaxTimestamp = &t
		}
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
