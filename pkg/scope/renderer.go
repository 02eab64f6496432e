package scope

import (
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
)

var (
	gridColor     = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor    = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	powerColor    = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	apparentColor = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	unpluggedFill = color.RGBA{R: 90, G: 20, B: 20, A: 120}
	reconnectFill = color.RGBA{R: 90, G: 80, B: 20, A: 120}
)

type scopeRenderer struct {
	scope *ScopeWidget

	grid    *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// plot is the drawing area and the value ranges mapped onto it.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (p plot) pos(t time.Time, v float64) fyne.Position {
	span := p.xMax.Sub(p.xMin).Seconds()
	x := p.x + float32(t.Sub(p.xMin).Seconds()/span)*p.w
	y := p.y + p.h - float32((v-p.yMin)/(p.yMax-p.yMin))*p.h
	return fyne.NewPos(x, y)
}

func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 240)
}

func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	snaps := r.scope.display
	p := plot{
		yMin: r.scope.yMin,
		yMax: r.scope.yMax,
		xMin: r.scope.xMin,
		xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 || p.yMax <= p.yMin || !p.xMax.After(p.xMin) {
		return
	}

	const (
		marginLeft   = 70
		marginRight  = 20
		marginTop    = 20
		marginBottom = 30
	)
	p.x, p.y = marginLeft, marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom

	r.objects = []fyne.CanvasObject{r.grid}
	r.drawStates(p, snaps)
	r.drawGrid(p)
	r.drawTrace(p, snaps, apparentColor, 1, func(s meter.Snapshot) float64 { return s.ApparentVA })
	r.drawTrace(p, snaps, powerColor, 2, func(s meter.Snapshot) float64 { return s.PowerW })
}

// drawStates shades the spans where the CT was disconnected or reconnecting.
func (r *scopeRenderer) drawStates(p plot, snaps []meter.Snapshot) {
	for i := 0; i < len(snaps); {
		st := snaps[i].State
		j := i + 1
		for j < len(snaps) && snaps[j].State == st {
			j++
		}
		if st != power.Connected {
			end := snaps[j-1].Time
			if j < len(snaps) {
				end = snaps[j].Time
			}
			fill := unpluggedFill
			if st == power.Reconnecting {
				fill = reconnectFill
			}
			x0 := p.pos(snaps[i].Time, p.yMax).X
			x1 := p.pos(end, p.yMax).X
			rect := canvas.NewRectangle(fill)
			rect.Move(fyne.NewPos(x0, p.y))
			rect.Resize(fyne.NewSize(max(x1-x0, 1), p.h))
			r.objects = append(r.objects, rect)
		}
		i = j
	}
}

func (r *scopeRenderer) drawGrid(p plot) {
	const hLines, vLines = 8, 10

	for i := 0; i < hLines+1; i++ {
		y := p.y + float32(i)*p.h/hLines
		r.line(gridColor, 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))

		v := p.yMax - float64(i)*(p.yMax-p.yMin)/hLines
		text := canvas.NewText(FormatPower(v), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	span := p.xMax.Sub(p.xMin)
	for i := 0; i < vLines+1; i++ {
		x := p.x + float32(i)*p.w/vLines
		r.line(gridColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))

		text := canvas.NewText(formatTime(span*time.Duration(i)/vLines), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

func (r *scopeRenderer) drawTrace(p plot, snaps []meter.Snapshot, c color.Color, width float32, value func(meter.Snapshot) float64) {
	for i := 1; i < len(snaps); i++ {
		r.line(c, width, p.pos(snaps[i-1].Time, value(snaps[i-1])), p.pos(snaps[i].Time, value(snaps[i])))
	}
}

func (r *scopeRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *scopeRenderer) Destroy() {}
