// Package draw renders annotation boxes onto their images for visual review.
package draw

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
	"github.com/banshee-data/markup-consensus/internal/security"
)

var (
	BoxColor   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	LabelColor = color.RGBA{R: 12, G: 255, B: 36, A: 255}
)

const (
	boxLineWidth = 3
	labelOffset  = 10
)

// Annotate returns a copy of img with every mark drawn as a rectangle and
// its label written just above the top-left corner.
func Annotate(img image.Image, marks []markup.Mark) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(boxLineWidth)
	for _, m := range marks {
		p := m.Position
		dc.SetColor(BoxColor)
		dc.DrawRectangle(p.X, p.Y, p.Width, p.Height)
		dc.Stroke()

		dc.SetColor(LabelColor)
		dc.DrawString(m.Label, p.X, p.Y-labelOffset)
	}
	return dc.Image()
}

// Drawer writes annotated copies of exported images.
type Drawer struct {
	Resolver markup.Resolver
	// DumpDir receives the annotated images under their export file names.
	DumpDir string
	// FS receives the output. Defaults to the OS filesystem.
	FS fsutil.FileSystem
}

// Markup draws every record's marks onto its image. Records without a
// result are copied unchanged. It returns the number of images written.
func (d *Drawer) Markup(samples []markup.Sample) (int, error) {
	fsys := d.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if err := fsutil.EnsureDir(fsys, d.DumpDir); err != nil {
		return 0, err
	}

	written := 0
	for _, s := range samples {
		dst, err := security.JoinWithin(d.DumpDir, s.FileName)
		if err != nil {
			return written, err
		}
		src := d.Resolver.Path(s.FileName)
		img, err := imaging.Open(src)
		if err != nil {
			return written, fmt.Errorf("failed to open %s: %w", src, err)
		}

		var marks []markup.Mark
		if s.Result != nil {
			marks = s.Result.Marks
		}

		format, err := imaging.FormatFromFilename(dst)
		if err != nil {
			return written, fmt.Errorf("output %s: %w", dst, err)
		}
		out := Annotate(img, marks)
		err = fsutil.WriteTo(fsys, dst, func(w io.Writer) error {
			return imaging.Encode(w, out, format)
		})
		if err != nil {
			return written, err
		}
		written++
	}

	monitoring.Logf("draw: wrote %d images to %s", written, d.DumpDir)
	return written, nil
}
