//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/gogpu/gg"

	"gocanvas/internal/animation"
	"gocanvas/internal/backend"
	gcanvas "gocanvas/internal/canvas"
	"gocanvas/internal/crash"
	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/vector"
	"gocanvas/internal/version"
)

// Run opens the editor window and blocks until it is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	s, err := NewSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	defer crash.Recover(s.Store)
	l.Info("starting UI", slog.String("version", version.String()))

	a := app.NewWithID("io.gocanvas.editor")
	w := a.NewWindow("gocanvas")
	prefs := a.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 1280), 800)
	winH := max(prefs.IntWithFallback("window.height", 860), 600)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	ed := newEditor(s, w, l)
	w.SetContent(ed.layout())
	w.SetMainMenu(ed.mainMenu())
	w.Canvas().SetOnTypedKey(ed.typedKey)
	ed.updateTitle()

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		if !s.Dirty() {
			ed.stopPreview()
			w.Close()
			return
		}
		dialog.ShowConfirm("Unsaved changes", "Discard changes to the canvas?", func(ok bool) {
			if ok {
				ed.stopPreview()
				w.Close()
			}
		}, w)
	})
	w.ShowAndRun()
	return nil
}

// editor owns the window chrome around the canvas view.
type editor struct {
	s   *Session
	w   fyne.Window
	log *slog.Logger

	view      *CanvasView
	status    *widget.Label
	zoomLabel *widget.Label
	progress  *widget.ProgressBar
	playBtn   *widget.Button
	lockCheck *widget.Check
	snapCheck *widget.Check

	textEntry  *widget.Entry
	sizeEntry  *widget.Entry
	colorEntry *widget.Entry
	familySel  *widget.Select
	themeSel   *widget.Select

	syncing bool

	playMu   sync.Mutex
	player   *animation.Player
	stopPlay context.CancelFunc

	rendering atomic.Bool
}

func newEditor(s *Session, w fyne.Window, l *slog.Logger) *editor {
	ed := &editor{s: s, w: w, log: l}
	ed.status = widget.NewLabel("Ready")
	ed.zoomLabel = widget.NewLabel("")
	ed.progress = widget.NewProgressBar()
	ed.progress.Hide()
	ed.view = NewCanvasView(s)
	ed.view.OnStatus = ed.setStatus
	ed.view.OnZoom = func(float64) { ed.updateZoomLabel() }
	ed.view.OnEdit = func() { ed.w.Canvas().Focus(ed.textEntry) }

	ed.textEntry = widget.NewEntry()
	ed.textEntry.SetPlaceHolder("Text")
	ed.textEntry.OnChanged = func(v string) {
		if !ed.syncing {
			ed.s.Ctrl.SetText(v)
		}
	}
	ed.textEntry.OnSubmitted = func(string) {
		ed.s.Ctrl.Key("Enter", false)
		ed.w.Canvas().Unfocus()
	}
	ed.sizeEntry = widget.NewEntry()
	ed.sizeEntry.SetPlaceHolder(fmt.Sprintf("%.0f", domain.DefaultFontSize))
	ed.sizeEntry.OnSubmitted = func(v string) {
		size := ParseFontSize(v)
		ed.s.Ctrl.SetFontSize(size)
		ed.syncing = true
		ed.sizeEntry.SetText(fmt.Sprintf("%.0f", size))
		ed.syncing = false
	}
	ed.colorEntry = widget.NewEntry()
	ed.colorEntry.SetPlaceHolder("#000000")
	ed.colorEntry.OnSubmitted = func(v string) { ed.s.Ctrl.SetColor(strings.TrimSpace(v)) }
	ed.familySel = widget.NewSelect(ed.s.Fonts.Families(), func(v string) {
		if !ed.syncing {
			ed.s.Ctrl.SetFontFamily(v)
		}
	})

	names := make([]string, 0)
	for _, t := range s.Catalog.Themes() {
		names = append(names, t.Name)
	}
	ed.themeSel = widget.NewSelect(names, func(v string) {
		if ed.s.SetTheme(v) {
			ed.view.Refresh()
		}
	})
	ed.themeSel.SetSelected(s.Theme().Name)

	ed.lockCheck = widget.NewCheck("Lock zoom", func(v bool) { ed.s.Ctrl.SetZoomLocked(v) })
	ed.lockCheck.SetChecked(s.Ctrl.ZoomLocked())
	ed.snapCheck = widget.NewCheck("Snap", func(v bool) { ed.s.Ctrl.SetSnapping(v) })
	ed.snapCheck.SetChecked(s.Ctrl.Snapping())

	s.Store.OnChange(func() { fyne.Do(ed.syncInspector) })
	ed.syncInspector()
	ed.updateZoomLabel()
	return ed
}

func (ed *editor) layout() fyne.CanvasObject {
	ed.playBtn = widget.NewButtonWithIcon("Preview", theme.MediaPlayIcon(), ed.togglePreview)
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), ed.addText),
		widget.NewToolbarAction(theme.FileImageIcon(), ed.addImage),
		widget.NewToolbarAction(theme.ContentAddIcon(), ed.showStickers),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentCopyIcon(), func() { ed.s.Ctrl.DuplicateSelected() }),
		widget.NewToolbarAction(theme.DeleteIcon(), func() { ed.s.Ctrl.DeleteSelected() }),
		widget.NewToolbarAction(theme.ContentClearIcon(), ed.confirmClear),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), func() { ed.zoom(ed.s.Ctrl.ZoomOut) }),
		widget.NewToolbarAction(theme.ZoomInIcon(), func() { ed.zoom(ed.s.Ctrl.ZoomIn) }),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentPrintIcon(), ed.exportPDF),
		widget.NewToolbarAction(theme.MediaVideoIcon(), ed.renderVideo),
	)
	top := container.NewBorder(nil, nil, nil, container.NewHBox(ed.snapCheck, ed.lockCheck, ed.zoomLabel, ed.playBtn), tb)

	inspector := container.NewVBox(
		widget.NewLabelWithStyle("Text", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		ed.textEntry,
		widget.NewForm(
			widget.NewFormItem("Size", ed.sizeEntry),
			widget.NewFormItem("Color", ed.colorEntry),
			widget.NewFormItem("Font", ed.familySel),
		),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Export theme", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		ed.themeSel,
	)
	bottom := container.NewBorder(nil, nil, nil, nil, container.NewVBox(ed.progress, ed.status))
	return container.NewBorder(top, bottom, nil, container.NewPadded(inspector), ed.view)
}

func (ed *editor) mainMenu() *fyne.MainMenu {
	openItem := fyne.NewMenuItem("Open…", ed.openScene)
	saveItem := fyne.NewMenuItem("Save", func() { ed.save(false) })
	saveAsItem := fyne.NewMenuItem("Save As…", func() { ed.save(true) })
	pdfItem := fyne.NewMenuItem("Export PDF…", ed.exportPDF)
	pngItem := fyne.NewMenuItem("Export PNG…", ed.exportPNG)
	posterItem := fyne.NewMenuItem("Export Poster Frame…", ed.exportPoster)
	videoItem := fyne.NewMenuItem("Render Video…", ed.renderVideo)
	file := fyne.NewMenu("File", openItem, saveItem, saveAsItem, fyne.NewMenuItemSeparator(), pdfItem, pngItem, posterItem, videoItem)

	insert := fyne.NewMenu("Insert",
		fyne.NewMenuItem("Text", ed.addText),
		fyne.NewMenuItem("Image…", ed.addImage),
		fyne.NewMenuItem("Sticker…", ed.showStickers),
	)
	edit := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Duplicate", func() { ed.s.Ctrl.DuplicateSelected() }),
		fyne.NewMenuItem("Delete", func() { ed.s.Ctrl.DeleteSelected() }),
		fyne.NewMenuItem("Clear Canvas", ed.confirmClear),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Show Poster Frame", ed.showPoster),
	)
	about := fyne.NewMenu("About", fyne.NewMenuItem("Version", func() {
		dialog.ShowInformation("gocanvas", "Version "+version.String(), ed.w)
	}))
	return fyne.NewMainMenu(file, edit, insert, about)
}

func (ed *editor) setStatus(msg string) { ed.status.SetText(msg) }

func (ed *editor) showError(err error) {
	ed.log.Error("ui action failed", slog.Any("err", err))
	ed.setStatus("Error: " + err.Error())
	dialog.ShowError(err, ed.w)
}

func (ed *editor) updateTitle() {
	name := "Untitled"
	if p := ed.s.Path(); p != "" {
		name = filepath.Base(p)
	}
	ed.w.SetTitle("gocanvas - " + name)
}

func (ed *editor) updateZoomLabel() {
	ed.zoomLabel.SetText(fmt.Sprintf("%.0f%%", ed.s.Ctrl.Zoom()*100))
}

func (ed *editor) zoom(fn func() error) {
	if err := fn(); err != nil {
		if errors.Is(err, gcanvas.ErrZoomLocked) {
			ed.setStatus("Zoom is locked")
			return
		}
		ed.showError(err)
		return
	}
	ed.updateZoomLabel()
	ed.view.Refresh()
}

// syncInspector mirrors the edited or selected text element into the form.
func (ed *editor) syncInspector() {
	ed.syncing = true
	defer func() { ed.syncing = false }()
	id := ed.s.Store.Editing()
	if id == "" {
		id = ed.s.Store.Selected()
	}
	el, ok := ed.s.Store.Get(id)
	if !ok || el.Kind != domain.KindText {
		ed.textEntry.SetText("")
		ed.textEntry.Disable()
		ed.sizeEntry.Disable()
		ed.colorEntry.Disable()
		ed.familySel.Disable()
		ed.view.Refresh()
		return
	}
	ed.textEntry.Enable()
	ed.sizeEntry.Enable()
	ed.colorEntry.Enable()
	ed.familySel.Enable()
	if ed.textEntry.Text != el.Text.Content {
		ed.textEntry.SetText(el.Text.Content)
	}
	ed.sizeEntry.SetText(fmt.Sprintf("%.0f", domain.ClampFontSize(el.Text.FontSize)))
	ed.colorEntry.SetText(el.Text.Color)
	ed.familySel.SetSelected(el.Text.FontFamily)
	ed.view.Refresh()
}

func (ed *editor) typedKey(ev *fyne.KeyEvent) {
	switch ev.Name {
	case fyne.KeyDelete, fyne.KeyBackspace:
		if ed.s.Ctrl.State() != gcanvas.Editing {
			ed.s.Ctrl.DeleteSelected()
		}
	case fyne.KeyEscape:
		ed.s.Ctrl.Blur(false)
		ed.s.Store.Select("")
	case fyne.KeyReturn, fyne.KeyEnter:
		ed.s.Ctrl.Key("Enter", false)
	}
}

func (ed *editor) addText() {
	ed.s.Ctrl.AddText()
	ed.w.Canvas().Focus(ed.textEntry)
}

func (ed *editor) addImage() {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			ed.showError(err)
			return
		}
		if rc == nil {
			return
		}
		defer rc.Close()
		u := rc.URI()
		ref := u.Path()
		if u.Scheme() != "file" {
			ref = u.String()
		}
		ed.s.Ctrl.AddImage(ref, u.Name())
		ed.setStatus("Added " + u.Name())
	}, ed.w)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}))
	d.Show()
}

func (ed *editor) showStickers() {
	stickers := ed.s.Catalog.Stickers()
	labels := make([]string, len(stickers))
	for i, st := range stickers {
		labels[i] = fmt.Sprintf("%s (%s)", st.Name, st.Category)
	}
	chosen := -1
	list := widget.NewList(
		func() int { return len(labels) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) { o.(*widget.Label).SetText(labels[i]) },
	)
	list.OnSelected = func(i widget.ListItemID) { chosen = int(i) }
	box := container.NewGridWrap(fyne.NewSize(320, 280), list)
	dialog.ShowCustomConfirm("Add sticker", "Add", "Cancel", box, func(ok bool) {
		if ok && chosen >= 0 && chosen < len(stickers) {
			ed.s.Ctrl.AddSticker(stickers[chosen])
		}
	}, ed.w)
}

func (ed *editor) confirmClear() {
	dialog.ShowConfirm("Clear canvas", "Remove every element?", func(ok bool) {
		if ok {
			ed.s.Ctrl.Clear()
		}
	}, ed.w)
}

func (ed *editor) openScene() {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			ed.showError(err)
			return
		}
		if rc == nil {
			return
		}
		path := rc.URI().Path()
		_ = rc.Close()
		ed.stopPreview()
		if err := ed.s.Open(path); err != nil {
			ed.showError(err)
			return
		}
		ed.updateTitle()
		ed.setStatus("Opened " + filepath.Base(path))
	}, ed.w)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	d.Show()
}

func (ed *editor) save(as bool) {
	if !as && ed.s.Path() != "" {
		if err := ed.s.Save(""); err != nil {
			ed.showError(err)
			return
		}
		ed.setStatus("Saved")
		return
	}
	ed.saveDialog("canvas.json", func(path string) {
		if err := ed.s.Save(path); err != nil {
			ed.showError(err)
			return
		}
		ed.updateTitle()
		ed.setStatus("Saved " + filepath.Base(path))
	})
}

// saveDialog asks for a target file and hands its path to fn.
func (ed *editor) saveDialog(name string, fn func(path string)) {
	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil {
			ed.showError(err)
			return
		}
		if wc == nil {
			return
		}
		path := wc.URI().Path()
		_ = wc.Close()
		fn(path)
	}, ed.w)
	d.SetFileName(name)
	d.Show()
}

func (ed *editor) exportPDF() {
	ed.saveDialog("canvas.pdf", func(path string) {
		ed.background("Exporting PDF…", func(ctx context.Context) (string, error) {
			p, err := ed.s.ExportPDF(ctx, path)
			return "Exported " + filepath.Base(p), err
		})
	})
}

func (ed *editor) exportPNG() {
	ed.saveDialog("canvas.png", func(path string) {
		ed.background("Exporting PNG…", func(ctx context.Context) (string, error) {
			p, err := ed.s.ExportPNG(ctx, path)
			return "Exported " + filepath.Base(p), err
		})
	})
}

// exportPoster writes the preview frame at which every element has entered.
func (ed *editor) exportPoster() {
	ed.saveDialog("poster.png", func(path string) {
		ed.background("Rendering poster frame…", func(ctx context.Context) (string, error) {
			p, err := ed.s.ExportPosterFrame(ctx, path)
			return "Exported " + filepath.Base(p), err
		})
	})
}

func (ed *editor) showPoster() {
	ed.setStatus("Rendering poster frame…")
	go func() {
		img, err := ed.s.PosterFrame(context.Background())
		fyne.Do(func() {
			if err != nil {
				ed.showError(err)
				return
			}
			ci := canvas.NewImageFromImage(img)
			ci.FillMode = canvas.ImageFillContain
			b := img.Bounds()
			ci.SetMinSize(fyne.NewSize(min(float32(b.Dx()), 640), min(float32(b.Dy()), 360)))
			dialog.ShowCustom("Poster frame", "Close", ci, ed.w)
			ed.setStatus("Ready")
		})
	}()
}

// background runs fn off the UI goroutine with an indeterminate progress bar.
func (ed *editor) background(msg string, fn func(ctx context.Context) (string, error)) {
	ed.setStatus(msg)
	ed.progress.Show()
	go func() {
		done, err := fn(context.Background())
		fyne.Do(func() {
			ed.progress.Hide()
			if err != nil {
				ed.showError(err)
				return
			}
			ed.setStatus(done)
		})
	}()
}

func (ed *editor) renderVideo() {
	if ed.rendering.Load() || ed.s.Client.InFlight() {
		ed.setStatus("A render is already in progress")
		return
	}
	ed.saveDialog("video.mp4", func(path string) {
		if !ed.rendering.CompareAndSwap(false, true) {
			return
		}
		ed.setStatus("Rendering video…")
		ed.progress.SetValue(0)
		ed.progress.Show()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			err := ed.s.Client.Progress(ctx, "", func(ev backend.ProgressEvent) {
				if ev.Total <= 0 {
					return
				}
				v := float64(ev.Frame) / float64(ev.Total)
				fyne.Do(func() { ed.progress.SetValue(v) })
			})
			if err != nil && ctx.Err() == nil {
				ed.log.Debug("progress stream ended", slog.Any("err", err))
			}
		}()
		go func() {
			defer cancel()
			defer ed.rendering.Store(false)
			err := ed.s.RenderVideo(ctx, path)
			fyne.Do(func() {
				ed.progress.Hide()
				if err != nil {
					var rerr *backend.RenderError
					if errors.As(err, &rerr) && rerr.Details != "" {
						err = fmt.Errorf("%s: %s", rerr.Message, rerr.Details)
					}
					ed.showError(err)
					return
				}
				ed.setStatus("Video saved to " + path)
			})
		}()
	})
}

func (ed *editor) togglePreview() {
	ed.playMu.Lock()
	playing := ed.player != nil && ed.player.Playing()
	ed.playMu.Unlock()
	if playing {
		ed.stopPreview()
		return
	}
	ed.s.Ctrl.Blur(false)
	p := ed.s.NewPlayer(func(frame int, visuals []animation.Visual) {
		fyne.Do(func() { ed.view.SetVisuals(visuals) })
	})
	p.SetLoop(false)
	ctx, cancel := context.WithCancel(context.Background())
	ed.playMu.Lock()
	ed.player, ed.stopPlay = p, cancel
	ed.playMu.Unlock()
	ed.playBtn.SetIcon(theme.MediaStopIcon())
	p.Seek(0)
	p.Play(ctx)
}

func (ed *editor) stopPreview() {
	ed.playMu.Lock()
	p, cancel := ed.player, ed.stopPlay
	ed.player, ed.stopPlay = nil, nil
	ed.playMu.Unlock()
	if p == nil {
		return
	}
	p.Pause()
	cancel()
	ed.view.SetVisuals(nil)
	if ed.playBtn != nil {
		ed.playBtn.SetIcon(theme.MediaPlayIcon())
	}
}

// CanvasView draws the scene at the controller's zoom and forwards pointer
// input to it. Dragging empty space pans the view.
type CanvasView struct {
	widget.BaseWidget
	s      *Session
	images *imageCache
	texts  *textCache

	offset  fyne.Position
	gesture bool
	panning bool
	last    vector.Pt

	visuals map[string]animation.Visual

	recognizer *wheelZoom

	OnStatus func(string)
	OnZoom   func(float64)
	OnEdit   func()
}

// wheelZoom turns scroll events into zoom steps for one zoom level; the
// controller swaps it whenever the zoom changes.
type wheelZoom struct {
	v    *CanvasView
	zoom float64
}

func (r *wheelZoom) Release() {
	if r.v.recognizer == r {
		r.v.recognizer = nil
	}
}

// NewCanvasView returns a view bound to s.
func NewCanvasView(s *Session) *CanvasView {
	v := &CanvasView{s: s, images: newImageCache(nil), texts: newTextCache(s.Fonts), offset: fyne.NewPos(24, 24)}
	v.ExtendBaseWidget(v)
	s.Ctrl.SetContainerOrigin(v.origin())
	s.Ctrl.Bind(func(z float64) gcanvas.Recognizer {
		r := &wheelZoom{v: v, zoom: z}
		v.recognizer = r
		return r
	})
	return v
}

func (v *CanvasView) origin() vector.Pt {
	return vector.Pt{X: float64(v.offset.X), Y: float64(v.offset.Y)}
}

func pt(p fyne.Position) vector.Pt { return vector.Pt{X: float64(p.X), Y: float64(p.Y)} }

func (v *CanvasView) toScreen(p vector.Pt) fyne.Position {
	s := vector.ToScreen(p, v.origin(), v.s.Ctrl.Zoom())
	return fyne.NewPos(float32(s.X), float32(s.Y))
}

// SetVisuals applies preview opacity and scale; nil shows the static scene.
func (v *CanvasView) SetVisuals(visuals []animation.Visual) {
	if visuals == nil {
		v.visuals = nil
	} else {
		m := make(map[string]animation.Visual, len(visuals))
		for _, vis := range visuals {
			m[vis.ID] = vis
		}
		v.visuals = m
	}
	v.Refresh()
}

func (v *CanvasView) status(msg string) {
	if v.OnStatus != nil {
		v.OnStatus(msg)
	}
}

// Tapped selects the element under the pointer, or clears the selection.
func (v *CanvasView) Tapped(e *fyne.PointEvent) {
	v.s.Ctrl.Blur(false)
	if hit, ok := v.s.Ctrl.HitTest(pt(e.Position)); ok {
		v.s.Store.Select(hit.ID)
	} else {
		v.s.Store.Select("")
	}
	v.Refresh()
}

// DoubleTapped enters inline editing on text.
func (v *CanvasView) DoubleTapped(e *fyne.PointEvent) {
	hit, ok := v.s.Ctrl.HitTest(pt(e.Position))
	if !ok {
		return
	}
	if err := v.s.Ctrl.DoubleClick(hit.ID); err != nil {
		v.status(err.Error())
		return
	}
	if v.s.Ctrl.State() == gcanvas.Editing && v.OnEdit != nil {
		v.OnEdit()
	}
}

// Dragged starts a drag or resize on the first event and feeds the pointer
// to the controller afterwards.
func (v *CanvasView) Dragged(e *fyne.DragEvent) {
	cur := pt(e.Position)
	if !v.gesture && !v.panning {
		start := cur.Sub(vector.Pt{X: float64(e.Dragged.DX), Y: float64(e.Dragged.DY)})
		if hit, ok := v.s.Ctrl.HitTest(start); ok {
			v.s.Ctrl.Blur(false)
			if err := v.s.Ctrl.PointerDown(hit, start); err != nil {
				v.status(err.Error())
				return
			}
			v.gesture = true
		} else {
			v.panning = true
		}
	}
	switch {
	case v.gesture:
		v.last = cur
		v.s.Ctrl.PointerMove(cur)
	case v.panning:
		v.offset = v.offset.Add(fyne.NewPos(e.Dragged.DX, e.Dragged.DY))
		v.s.Ctrl.SetContainerOrigin(v.origin())
	}
	v.Refresh()
}

// DragEnd commits the gesture.
func (v *CanvasView) DragEnd() {
	if v.gesture {
		v.s.Ctrl.PointerUp(v.last)
	}
	v.gesture, v.panning = false, false
	v.Refresh()
}

// Scrolled zooms through the bound recognizer.
func (v *CanvasView) Scrolled(e *fyne.ScrollEvent) {
	if v.recognizer == nil {
		return
	}
	var err error
	if e.Scrolled.DY > 0 {
		err = v.s.Ctrl.ZoomIn()
	} else {
		err = v.s.Ctrl.ZoomOut()
	}
	if err != nil {
		v.status(err.Error())
		return
	}
	if v.OnZoom != nil {
		v.OnZoom(v.s.Ctrl.Zoom())
	}
	v.Refresh()
}

// MinSize keeps the view usable in small windows.
func (v *CanvasView) MinSize() fyne.Size { return fyne.NewSize(480, 360) }

func (v *CanvasView) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 42, G: 42, B: 48, A: 255})
	return &canvasViewRenderer{v: v, bg: bg}
}

var (
	selectionColor = color.NRGBA{R: 0, G: 170, B: 255, A: 255}
	editingColor   = color.NRGBA{R: 255, G: 170, B: 0, A: 255}
	guideColor     = color.NRGBA{R: 255, G: 0, B: 170, A: 200}
	placeholderBG  = color.NRGBA{R: 200, G: 200, B: 200, A: 120}
)

// toColor parses a hex color, falling back to fallback.
func toColor(hex string, fallback color.Color) color.NRGBA {
	if strings.TrimSpace(hex) == "" {
		r, g, b, a := fallback.RGBA()
		return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
	}
	c := gg.Hex(hex)
	return color.NRGBA{R: uint8(c.R * 255), G: uint8(c.G * 255), B: uint8(c.B * 255), A: uint8(c.A * 255)}
}

type canvasViewRenderer struct {
	v       *CanvasView
	bg      *canvas.Rectangle
	objects []fyne.CanvasObject
}

// Destroy keeps the recognizer; Session.Close releases it with the controller.
func (r *canvasViewRenderer) Destroy() {}

func (r *canvasViewRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *canvasViewRenderer) MinSize() fyne.Size           { return r.v.MinSize() }

func (r *canvasViewRenderer) Refresh() {
	r.Layout(r.v.Size())
	canvas.Refresh(r.v)
}

// Layout rebuilds the scene objects: page, elements in paint order, the
// selection frame with handles, and snapping guides.
func (r *canvasViewRenderer) Layout(size fyne.Size) {
	v := r.v
	s := v.s
	zoom := s.Ctrl.Zoom()
	r.bg.Resize(size)
	objs := []fyne.CanvasObject{r.bg}

	th := s.Theme()
	pageSize := fyne.NewSize(float32(float64(s.cfg.Canvas.Width)*zoom), float32(float64(s.cfg.Canvas.Height)*zoom))
	var page fyne.CanvasObject
	if th.GradientTo != "" {
		page = canvas.NewLinearGradient(toColor(th.Background, color.White), toColor(th.GradientTo, color.White), 45)
	} else {
		page = canvas.NewRectangle(toColor(th.Background, color.White))
	}
	page.Move(v.offset)
	page.Resize(pageSize)
	objs = append(objs, page)

	keep := map[string]bool{}
	for _, el := range s.Store.PaintOrder() {
		if el.IsAsset() {
			keep[el.SourceRef()] = true
		}
		objs = append(objs, r.element(el, th, zoom)...)
	}
	v.images.Forget(keep)

	if v.visuals == nil {
		objs = append(objs, r.selection(zoom)...)
		for _, g := range s.Ctrl.Guides() {
			line := canvas.NewLine(guideColor)
			line.StrokeWidth = 1
			line.Position1 = v.toScreen(g.From)
			line.Position2 = v.toScreen(g.To)
			objs = append(objs, line)
		}
	}
	r.objects = objs
}

func (r *canvasViewRenderer) element(el domain.CanvasElement, th domain.Theme, zoom float64) []fyne.CanvasObject {
	v := r.v
	opacity, scale := 1.0, 1.0
	if v.visuals != nil {
		vis, ok := v.visuals[el.ID]
		if !ok {
			return nil
		}
		opacity, scale = vis.Opacity, vis.Scale
	}
	if opacity <= 0 || scale <= 0 {
		return nil
	}
	rect := vector.FromRect(el.Bounds()).ScaleAbout(scale)
	pos := v.toScreen(rect.Min())
	size := fyne.NewSize(float32(rect.W*zoom), float32(rect.H*zoom))

	if el.IsAsset() {
		img, err := v.images.Get(el.SourceRef(), func() { fyne.Do(v.Refresh) })
		if img == nil {
			ph := canvas.NewRectangle(placeholderBG)
			if err != nil {
				ph.StrokeColor = color.NRGBA{R: 200, G: 40, B: 40, A: 255}
				ph.StrokeWidth = 1
			}
			ph.Move(pos)
			ph.Resize(size)
			return []fyne.CanvasObject{ph}
		}
		ci := canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillStretch
		ci.Translucency = 1 - opacity
		ci.Move(pos)
		ci.Resize(size)
		return []fyne.CanvasObject{ci}
	}
	if el.Text == nil {
		return nil
	}
	img, err := v.texts.Image(el, th, zoom, scale, opacity)
	if err != nil {
		return nil
	}
	ci := canvas.NewImageFromImage(img)
	ci.FillMode = canvas.ImageFillStretch
	ci.Move(pos)
	ci.Resize(size)
	return []fyne.CanvasObject{ci}
}

func (r *canvasViewRenderer) selection(zoom float64) []fyne.CanvasObject {
	v := r.v
	id := v.s.Store.Editing()
	stroke := editingColor
	if id == "" {
		id, stroke = v.s.Store.Selected(), selectionColor
	}
	el, ok := v.s.Store.Get(id)
	if !ok {
		return nil
	}
	b := vector.FromRect(el.Bounds())
	pos := v.toScreen(b.Min())
	size := fyne.NewSize(float32(b.W*zoom), float32(b.H*zoom))
	frame := canvas.NewRectangle(color.Transparent)
	frame.StrokeColor = stroke
	frame.StrokeWidth = 1.5
	frame.Move(pos)
	frame.Resize(size)
	out := []fyne.CanvasObject{frame}
	if v.s.Store.Editing() != "" {
		return out
	}
	h := float32(gcanvas.HandleSize)
	for _, c := range []fyne.Position{
		pos,
		pos.Add(fyne.NewPos(size.Width, 0)),
		pos.Add(fyne.NewPos(0, size.Height)),
		pos.Add(fyne.NewPos(size.Width, size.Height)),
	} {
		hr := canvas.NewRectangle(selectionColor)
		hr.Move(c.Subtract(fyne.NewPos(h/2, h/2)))
		hr.Resize(fyne.NewSize(h, h))
		out = append(out, hr)
	}
	return out
}
