package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/files"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/moonraker"
)

var filesRoot = map[string]string{"root": "gcodes"}

var macroQuery = map[string]any{
	"objects": map[string]any{"configfile": []string{"settings"}},
}

// list handles "ls [-l] [glob]".
func (r *Router) list(args []string) *gateway.Record {
	long := false
	var pattern string
	for _, a := range args {
		if a == "-l" {
			long = true
			continue
		}
		if pattern == "" {
			pattern = a
		}
	}
	label := strings.TrimSpace("ls " + strings.Join(args, " "))
	timeout := r.listTimeout
	if !long {
		timeout = 0
	}
	return r.gw.Go(label, timeout, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		ix, err := r.fetchFiles(ctx, call, pattern)
		if err != nil {
			return nil, err
		}
		var meta map[string]moonraker.Metadata
		if long {
			meta = fetchMetadata(ctx, call, ix.Entries())
		}
		r.out.Output(formatListing(ix, meta))
		return nil, nil
	})
}

// fetchFiles refreshes the listing and installs the index for pattern.
func (r *Router) fetchFiles(ctx context.Context, call gateway.CallFunc, pattern string) (*files.Index, error) {
	raw, err := call(ctx, moonraker.MethodFilesList, filesRoot)
	if err != nil {
		return nil, err
	}
	infos, err := moonraker.DecodeFiles(raw)
	if err != nil {
		return nil, err
	}
	ix := r.catalog.SetFiles(files.FromInfos(infos))
	if pattern != "" {
		ix = files.Build(r.catalog.Files(), pattern)
		r.catalog.SetIndex(ix)
	}
	return ix, nil
}

func fetchMetadata(ctx context.Context, call gateway.CallFunc, entries []files.Entry) map[string]moonraker.Metadata {
	out := make(map[string]moonraker.Metadata, len(entries))
	for _, e := range entries {
		raw, err := call(ctx, moonraker.MethodFilesMetadata, map[string]string{"filename": e.File.Path})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if md, err := moonraker.DecodeMetadata(raw); err == nil {
			out[e.File.Path] = md
		}
	}
	return out
}

// RefreshFiles reloads the listing without printing it.
func (r *Router) RefreshFiles(ctx context.Context) error {
	rec := r.gw.Go("refresh files", 0, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		_, err := r.fetchFiles(ctx, call, "")
		return nil, err
	})
	return wait(ctx, rec)
}

// RefreshMacros reloads the macro set from the printer configuration.
func (r *Router) RefreshMacros(ctx context.Context) error {
	rec := r.gw.Go("refresh macros", 0, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		raw, err := call(ctx, moonraker.MethodQuery, macroQuery)
		if err != nil {
			return nil, err
		}
		macros, err := moonraker.DecodeMacros(raw)
		if err != nil {
			return nil, err
		}
		r.catalog.SetMacros(macros)
		return nil, nil
	})
	return wait(ctx, rec)
}

// RefreshIfStale starts a background listing refresh when the cached listing
// is missing or older than the TTL. It never blocks and never runs two
// refreshes at once.
func (r *Router) RefreshIfStale() {
	if age, ok := r.catalog.FilesAge(); ok && age < r.filesTTL {
		return
	}
	if !r.refreshing.CompareAndSwap(false, true) {
		return
	}
	r.gw.Go("refresh files", 0, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		defer r.refreshing.Store(false)
		if _, err := r.fetchFiles(ctx, call, ""); err != nil {
			r.log.Debug("file refresh failed", zap.Error(err))
			return nil, err
		}
		return nil, nil
	})
}

// resolve maps a "#N" or a name to a path, publishing an error on failure.
func (r *Router) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	p, err := r.catalog.Index().Resolve(ref)
	if err != nil {
		var unknown *files.UnknownIDError
		if errors.As(err, &unknown) {
			r.fail("%s", err)
			return "", false
		}
		r.fail("%v", err)
		return "", false
	}
	if len(r.catalog.Files()) == 0 {
		return p, true
	}
	if _, ok := r.catalog.Lookup(p); ok {
		return p, true
	}
	if s := suggest(p, r.catalog.Paths()); s != "" {
		r.fail("File not found: %s. Did you mean %s?", p, s)
	} else {
		r.fail("File not found: %s. Use 'ls' to see available files.", p)
	}
	return "", false
}

func (r *Router) print(ref string) *gateway.Record {
	if strings.TrimSpace(ref) == "" {
		r.fail("Usage: print <file|#N>")
		return nil
	}
	p, ok := r.resolve(ref)
	if !ok {
		return nil
	}
	return r.start(p)
}

func (r *Router) reprint() *gateway.Record {
	var p string
	if r.state != nil {
		p = r.state.Snapshot().Filename
	}
	if p == "" {
		p = r.catalog.LastPrint()
	}
	if p == "" {
		r.fail("Nothing to reprint")
		return nil
	}
	return r.start(p)
}

func (r *Router) start(p string) *gateway.Record {
	return r.gw.Go("print "+p, 0, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		raw, err := call(ctx, moonraker.MethodPrintStart, map[string]string{"filename": p})
		if err != nil {
			return nil, err
		}
		r.catalog.SetLastPrint(p)
		r.out.Output("Starting print: " + p)
		return raw, nil
	})
}

func (r *Router) info(ref string) *gateway.Record {
	if strings.TrimSpace(ref) == "" {
		r.fail("Usage: info <file|#N>")
		return nil
	}
	p, ok := r.resolve(ref)
	if !ok {
		return nil
	}
	return r.gw.Go("info "+p, 0, func(ctx context.Context, call gateway.CallFunc) (json.RawMessage, error) {
		raw, err := call(ctx, moonraker.MethodFilesMetadata, map[string]string{"filename": p})
		if err != nil {
			return nil, err
		}
		md, err := moonraker.DecodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		if md.Filename == "" {
			md.Filename = p
		}
		r.out.Output(formatMetadata(md))
		return raw, nil
	})
}

// suggest returns the listed path closest to name, or "" if nothing is close.
func suggest(name string, candidates []string) string {
	needle := strings.ToLower(path.Base(name))
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(path.Base(c)))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := len(needle) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}

func wait(ctx context.Context, rec *gateway.Record) error {
	select {
	case <-rec.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if rec.State() != gateway.Acknowledged {
		return fmt.Errorf("%s: %s", rec.Text, rec.Reason())
	}
	return nil
}

func formatListing(ix *files.Index, meta map[string]moonraker.Metadata) string {
	if ix.Len() == 0 {
		if ix.Pattern() != "" {
			return fmt.Sprintf("No files match %q", ix.Pattern())
		}
		return "No files"
	}
	var b strings.Builder
	for i, e := range ix.Entries() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "#%-3d %s  (%s, %s)", e.ID, e.File.Path,
			FormatBytes(e.File.Size), humanize.Time(e.File.Modified))
		md, ok := meta[e.File.Path]
		if !ok {
			continue
		}
		var parts []string
		if md.EstimatedTime != nil {
			parts = append(parts, "est "+FormatDuration(seconds(*md.EstimatedTime)))
		}
		if md.FilamentTotal != nil {
			parts = append(parts, formatFilament(*md.FilamentTotal))
		}
		if md.Slicer != "" {
			parts = append(parts, md.Slicer)
		}
		if len(parts) > 0 {
			b.WriteString("\n     " + strings.Join(parts, ", "))
		}
	}
	return b.String()
}

// Approximate mass of 1.75mm PLA per metre.
const gramsPerMetre = 2.98

func formatFilament(mm float64) string {
	m := mm / 1000
	return fmt.Sprintf("%.2f m (~%.0f g)", m, m*gramsPerMetre)
}

func formatMetadata(md moonraker.Metadata) string {
	lines := []string{md.Filename}
	add := func(label, value string) {
		lines = append(lines, fmt.Sprintf("  %-11s %s", label+":", value))
	}
	if md.Size > 0 {
		add("Size", FormatBytes(md.Size))
	}
	if md.Modified > 0 {
		add("Modified", humanize.Time(unixTime(md.Modified)))
	}
	if md.EstimatedTime != nil {
		add("Estimated", FormatDuration(seconds(*md.EstimatedTime)))
	}
	if md.FilamentTotal != nil {
		add("Filament", formatFilament(*md.FilamentTotal))
	}
	if md.LayerHeight != nil {
		layers := fmt.Sprintf("%g mm", *md.LayerHeight)
		if md.FirstLayerHeight != nil {
			layers += fmt.Sprintf(" (first %g mm)", *md.FirstLayerHeight)
		}
		if md.ObjectHeight != nil {
			layers += fmt.Sprintf(", height %g mm", *md.ObjectHeight)
		}
		add("Layers", layers)
	}
	var temps []string
	if md.FirstLayerExtrTemp != nil {
		temps = append(temps, fmt.Sprintf("nozzle %.0f°C", *md.FirstLayerExtrTemp))
	}
	if md.FirstLayerBedTemp != nil {
		temps = append(temps, fmt.Sprintf("bed %.0f°C", *md.FirstLayerBedTemp))
	}
	if len(temps) > 0 {
		add("Temps", strings.Join(temps, ", "))
	}
	if md.Slicer != "" {
		add("Slicer", strings.TrimSpace(md.Slicer+" "+md.SlicerVersion))
	}
	if len(lines) == 1 {
		lines = append(lines, "  (no metadata)")
	}
	return strings.Join(lines, "\n")
}
