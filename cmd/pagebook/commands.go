package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/pagebook/internal/book"
	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/imaging"
	"github.com/spherical/pagebook/internal/lazy"
	"github.com/spherical/pagebook/internal/ocr"
	"github.com/spherical/pagebook/internal/pdf"
)

// run wires a session to the terminal UI for the duration of fn.
func run(ctx context.Context, fn func(ctx context.Context, s *book.Session, ui *UI) error) error {
	ui := NewUI(noColor)
	events := make(chan domain.StreamEvent, 256)
	followed := make(chan struct{})
	go ui.Follow(events, followed)

	s := book.NewSession(cfg, pdf.NewFitzBackend(), ocr.TesseractFactory(cfg.OCR.Language),
		book.WithEvents(events),
		book.WithLogger(logger),
	)

	err := fn(ctx, s, ui)
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	close(events)
	<-followed
	ui.Close()
	return err
}

func readSources(paths []string) ([]domain.SourceFile, error) {
	files := make([]domain.SourceFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("read %s", p), err)
		}
		files = append(files, domain.SourceFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file.pdf>",
		Short: "Show page count and approximate page sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, s *book.Session, ui *UI) error {
				files, err := readSources(args)
				if err != nil {
					return err
				}

				stop := ui.Spinner("Reading " + files[0].Name)
				meta, err := s.Load(ctx, files)
				stop()
				if err != nil {
					return err
				}

				ui.Success("%s: %d pages", meta.Title, meta.TotalPages)
				for _, p := range meta.Pages {
					fmt.Printf("  page %4d  %7.1f x %7.1f\n", p.PageNumber, p.Width, p.Height)
				}
				return nil
			})
		},
	}
}

func newConvertCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "convert <file.pdf | image...>",
		Short: "Convert every page to an image in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, s *book.Session, ui *UI) error {
				files, err := readSources(args)
				if err != nil {
					return err
				}
				meta, err := s.Load(ctx, files)
				if err != nil {
					return err
				}

				entries, err := s.ConvertAll(ctx)
				if err != nil {
					return err
				}

				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return domain.IOError("create output directory", err)
				}
				base := strings.TrimSuffix(meta.Title, filepath.Ext(meta.Title))
				for _, e := range entries {
					path := filepath.Join(outDir, fmt.Sprintf("%s-%03d%s", base, e.Index+1, extension(e.Image.MIMEType)))
					if err := os.WriteFile(path, e.Image.Data, 0o644); err != nil {
						return domain.IOError("write page image", err)
					}
				}
				ui.Success("Wrote %d pages to %s", len(entries), outDir)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", "pages", "output directory")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var (
		outDir   string
		pages    string
		viewport string
		rotate   int
		mirror   bool
		crop     string
	)

	cmd := &cobra.Command{
		Use:   "render <file.pdf>",
		Short: "Render selected pages on demand and apply edits",
		Long: `Render only the pages that are requested, either by number or by a
viewport over the page column ("top:height" in layout pixels). Rotation,
mirroring and cropping are applied to the rendered pages before writing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := parsePages(pages)
			if err != nil {
				return err
			}
			rect, err := parseRect(crop)
			if err != nil {
				return err
			}

			return run(cmd.Context(), func(ctx context.Context, s *book.Session, ui *UI) error {
				files, err := readSources(args)
				if err != nil {
					return err
				}
				if _, err := s.Load(ctx, files); err != nil {
					return err
				}

				cancel := s.Watch(func(p domain.Page) {
					if p.Loading {
						logger.Debug().Int("page", p.PageNumber).Msg("loading")
					}
				})
				defer cancel()

				var requested []int
				switch {
				case viewport != "":
					vp, err := parseViewport(viewport)
					if err != nil {
						return err
					}
					requested = s.Scroll(ctx, vp)
				case len(numbers) > 0:
					s.Visible(ctx, numbers...)
					requested = numbers
				default:
					s.Prefetch(ctx, 0)
				}
				s.WaitRenders()
				if viewport == "" && len(numbers) == 0 {
					requested = renderedPages(s)
				}

				enc := imaging.Encoder{Format: imaging.Format(cfg.Render.Format), Quality: cfg.Render.JPEGQuality}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return domain.IOError("create output directory", err)
				}

				written := 0
				for _, n := range requested {
					if err := applyEdits(s, n, rotate, mirror, rect); err != nil {
						ui.Warning("page %d: %v", n, err)
						continue
					}
					img, err := s.Display(n)
					if err != nil {
						ui.Warning("page %d: %v", n, err)
						continue
					}
					ref, err := enc.Encode(img)
					if err != nil {
						return err
					}
					path := filepath.Join(outDir, fmt.Sprintf("page-%03d%s", n, extension(ref.MIMEType)))
					if err := os.WriteFile(path, ref.Data, 0o644); err != nil {
						return domain.IOError("write page image", err)
					}
					written++
				}
				ui.Success("Wrote %d pages to %s", written, outDir)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", "pages", "output directory")
	cmd.Flags().StringVarP(&pages, "pages", "p", "", "comma separated page numbers, e.g. 1,3,9")
	cmd.Flags().StringVar(&viewport, "viewport", "", "render pages near a viewport, as top:height")
	cmd.Flags().IntVar(&rotate, "rotate", 0, "rotate pages clockwise by degrees")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "mirror pages horizontally")
	cmd.Flags().StringVar(&crop, "crop", "", "crop rectangle x,y,width,height in displayed pixels")
	return cmd
}

func newOCRCmd() *cobra.Command {
	var (
		outDir string
		pages  string
		crop   string
	)

	cmd := &cobra.Command{
		Use:   "ocr <file.pdf | image...>",
		Short: "Recognize text on pages and export it as .txt",
		Long: `Recognize text with Tesseract. Pages must be cropped first unless
ocr.require_crop is false; --crop crops the selected pages before
recognition. Requires a build with -tags ocr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !ocr.Enabled {
				return ocr.ErrOCRNotEnabled
			}
			numbers, err := parsePages(pages)
			if err != nil {
				return err
			}
			rect, err := parseRect(crop)
			if err != nil {
				return err
			}

			return run(cmd.Context(), func(ctx context.Context, s *book.Session, ui *UI) error {
				files, err := readSources(args)
				if err != nil {
					return err
				}
				meta, err := s.Load(ctx, files)
				if err != nil {
					return err
				}
				if len(numbers) == 0 {
					for _, p := range meta.Pages {
						numbers = append(numbers, p.PageNumber)
					}
				}

				s.Visible(ctx, numbers...)
				s.WaitRenders()
				if rect != nil {
					for _, n := range numbers {
						if _, err := s.Crop(n, *rect); err != nil {
							ui.Warning("page %d: %v", n, err)
						}
					}
				}

				if _, err := s.RecognizeText(ctx); err != nil {
					return err
				}
				path, err := s.ExportText(outDir)
				if err != nil {
					return err
				}
				ui.Success("Text written to %s", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	cmd.Flags().StringVarP(&pages, "pages", "p", "", "comma separated page numbers (default: all)")
	cmd.Flags().StringVar(&crop, "crop", "", "crop rectangle x,y,width,height applied before recognition")
	return cmd
}

func applyEdits(s *book.Session, n, rotate int, mirror bool, rect *domain.Rect) error {
	if rotate != 0 {
		if _, err := s.Rotate(n, rotate); err != nil {
			return err
		}
	}
	if mirror {
		if _, err := s.ToggleMirror(n); err != nil {
			return err
		}
	}
	if rect != nil {
		if _, err := s.Crop(n, *rect); err != nil {
			return err
		}
	}
	return nil
}

func renderedPages(s *book.Session) []int {
	meta, _ := s.Snapshot()
	var out []int
	for _, p := range meta.Pages {
		if p.HasImage() {
			out = append(out, p.PageNumber)
		}
	}
	return out
}

func parsePages(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, domain.ValidationError(fmt.Sprintf("invalid page number %q", part), err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseRect(s string) (*domain.Rect, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, domain.ValidationError("crop must be x,y,width,height", nil)
	}
	v := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, domain.ValidationError(fmt.Sprintf("invalid crop value %q", p), err)
		}
		v[i] = n
	}
	r := domain.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return nil, domain.ValidationError("crop rectangle has no area", nil)
	}
	return &r, nil
}

func parseViewport(s string) (lazy.Viewport, error) {
	top, height, ok := strings.Cut(s, ":")
	if !ok {
		return lazy.Viewport{}, domain.ValidationError("viewport must be top:height", nil)
	}
	t, err := strconv.ParseFloat(top, 64)
	if err != nil {
		return lazy.Viewport{}, domain.ValidationError("invalid viewport top", err)
	}
	h, err := strconv.ParseFloat(height, 64)
	if err != nil || h < 0 {
		return lazy.Viewport{}, domain.ValidationError("invalid viewport height", err)
	}
	return lazy.Viewport{Top: t, Height: h}, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".img"
	}
}
