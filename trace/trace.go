package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/tabloide/svg"
)

const (
	GroupID    = "traceability"
	MetadataID = "trace_metadata"
	QRID       = "trace_qr"
	CodePrefix = "TB-"
	Namespace  = "https://tabloide.dev/ns/trace"
)

var log = logger.GetLogger("trace")

// Info identifies one produced artifact.
type Info struct {
	ProjectID string    `json:"project_id" yaml:"project_id"`
	Version   int       `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Operator  string    `json:"operator,omitempty" yaml:"operator,omitempty"`
	MachineID string    `json:"machine_id,omitempty" yaml:"machine_id,omitempty"`
}

// NewInfo stamps the current time and machine.
func NewInfo(project string, version int, operator string) Info {
	return Info{
		ProjectID: project,
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Operator:  operator,
		MachineID: MachineID(),
	}
}

// Code is the 12 character identifier printed on the artifact. It depends
// only on the project, version and creation time.
func (i Info) Code() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", i.ProjectID, i.Version, i.CreatedAt.UTC().Format(time.RFC3339Nano))))
	return strings.ToUpper(hex.EncodeToString(h[:]))[:12]
}

// Label is the visible mark, e.g. TB-3F9A0C21B7D4.
func (i Info) Label() string {
	return CodePrefix + i.Code()
}

// QRPayload is the text encoded in the QR mark.
func (i Info) QRPayload() string {
	return fmt.Sprintf("TABLOIDE|%s|%s|v%d", i.Code(), i.ProjectID, i.Version)
}

// MachineID is a short stable digest of the host name.
func MachineID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	h := sha256.Sum256([]byte(host))
	return hex.EncodeToString(h[:4])
}

// Options controls the placement of the stamp. Sizes are in document user
// units; zero values scale with the page.
type Options struct {
	FontSize float64 `yaml:"font_size,omitempty" json:"font_size,omitempty"`
	Margin   float64 `yaml:"margin,omitempty" json:"margin,omitempty"`
	Opacity  float64 `yaml:"opacity,omitempty" json:"opacity,omitempty"`
	QR       bool    `yaml:"qr,omitempty" json:"qr,omitempty"`
	QRSize   float64 `yaml:"qr_size,omitempty" json:"qr_size,omitempty"`
	// Inset shrinks the page before placement, e.g. by the bleed so the
	// mark survives trimming.
	Inset float64 `yaml:"-" json:"-"`
}

func (o Options) withDefaults(page svg.Rect) Options {
	unit := math.Min(page.Width, page.Height)
	if o.FontSize <= 0 {
		o.FontSize = unit * 0.012
	}
	if o.Margin <= 0 {
		o.Margin = unit * 0.02
	}
	if o.Opacity <= 0 {
		o.Opacity = 0.4
	}
	if o.QRSize <= 0 {
		o.QRSize = unit * 0.06
	}
	return o
}

// Stamp adds the traceability group to the document: a faint code in the
// bottom right corner, a metadata record and optionally a QR code in the
// bottom left corner. A previous stamp is replaced.
func Stamp(doc *svg.Document, info Info, opts Options) error {
	root := doc.Root
	page, ok := svg.ParseViewBox(root.AttrOr("viewBox", ""))
	if !ok {
		w, _ := svg.Float(root.AttrOr("width", ""))
		h, _ := svg.Float(root.AttrOr("height", ""))
		if w <= 0 || h <= 0 {
			return fmt.Errorf("cannot place traceability mark without a viewBox or size")
		}
		page = svg.Rect{Width: w, Height: h}
	}
	if opts.Inset > 0 && page.Width > 2*opts.Inset && page.Height > 2*opts.Inset {
		page = svg.Rect{X: page.X + opts.Inset, Y: page.Y + opts.Inset,
			Width: page.Width - 2*opts.Inset, Height: page.Height - 2*opts.Inset}
	}
	opts = opts.withDefaults(page)

	if old, ok := doc.ByID(GroupID); ok && old.Parent() != nil {
		old.Parent().RemoveChild(old)
	}

	g := svg.NewElement("g").SetAttr("id", GroupID)

	label := svg.NewElement("text").
		SetAttr("x", svg.FormatNumber(page.Right()-opts.Margin)).
		SetAttr("y", svg.FormatNumber(page.Bottom()-opts.Margin)).
		SetAttr("font-family", "monospace").
		SetAttr("font-size", svg.FormatNumber(opts.FontSize)).
		SetAttr("text-anchor", "end").
		SetAttr("fill", "#000000").
		SetAttr("fill-opacity", svg.FormatNumber(opts.Opacity))
	label.AppendChild(&svg.Text{Data: info.Label()})
	g.AppendChild(label)

	meta := svg.NewElement("metadata").SetAttr("id", MetadataID)
	meta.AppendChild(record(info))
	g.AppendChild(meta)

	if opts.QR {
		qr, err := qrGroup(info.QRPayload(), opts.QRSize)
		if err != nil {
			return err
		}
		qr.SetAttr("transform", fmt.Sprintf("translate(%s,%s) %s",
			svg.FormatNumber(page.X+opts.Margin),
			svg.FormatNumber(page.Bottom()-opts.Margin-opts.QRSize),
			qr.AttrOr("transform", "")))
		g.AppendChild(qr)
	}

	root.AppendChild(g)
	log.Debugf("stamped %s on %s v%d", info.Label(), info.ProjectID, info.Version)
	return nil
}

func record(info Info) *svg.Element {
	el := svg.NewElement("tabloide:trace").
		SetAttr("xmlns:tabloide", Namespace).
		SetAttr("code", info.Code()).
		SetAttr("project", info.ProjectID).
		SetAttr("version", strconv.Itoa(info.Version)).
		SetAttr("created", info.CreatedAt.UTC().Format(time.RFC3339Nano))
	if info.Operator != "" {
		el.SetAttr("operator", info.Operator)
	}
	if info.MachineID != "" {
		el.SetAttr("machine", info.MachineID)
	}
	return el
}

// Extract reads the stamp back from a document.
func Extract(doc *svg.Document) (Info, bool) {
	meta, ok := doc.ByID(MetadataID)
	if !ok {
		return Info{}, false
	}
	rec, ok := meta.Find(func(e *svg.Element) bool { return e.LocalName() == "trace" })
	if !ok {
		return Info{}, false
	}
	info := Info{
		ProjectID: rec.AttrOr("project", ""),
		Operator:  rec.AttrOr("operator", ""),
		MachineID: rec.AttrOr("machine", ""),
	}
	info.Version, _ = strconv.Atoi(rec.AttrOr("version", "0"))
	created, err := time.Parse(time.RFC3339Nano, rec.AttrOr("created", ""))
	if err != nil {
		return Info{}, false
	}
	info.CreatedAt = created
	if code := rec.AttrOr("code", ""); code != "" && code != info.Code() {
		log.Warnf("trace record code %s does not match its fields (%s)", code, info.Code())
		return Info{}, false
	}
	return info, true
}
