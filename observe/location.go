package observe

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// UnknownLocation is reported when no frame lies under the project root.
const UnknownLocation = "unknown:0"

// maxCallerFrames bounds the stack snapshot taken per log call.
const maxCallerFrames = 32

// Frame is one entry of a stack snapshot.
type Frame struct {
	File string
	Line int
}

// FrameSource returns up to maxCallerFrames frames, outermost last. skip=0
// identifies the caller of the FrameSource.
type FrameSource func(skip int) []Frame

// RuntimeFrames is the FrameSource backed by runtime.Callers.
func RuntimeFrames(skip int) []Frame {
	pcs := make([]uintptr, maxCallerFrames)
	// +2 skips runtime.Callers and RuntimeFrames itself.
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := make([]Frame, 0, n)
	iter := runtime.CallersFrames(pcs[:n])
	for {
		f, more := iter.Next()
		if f.File != "" {
			frames = append(frames, Frame{File: f.File, Line: f.Line})
		}
		if !more || len(frames) == maxCallerFrames {
			break
		}
	}
	return frames
}

// LocationResolver turns the active call stack into a "path:line" string
// relative to a project root. Binaries built with -trimpath record
// module-relative file names ("example.com/app/handlers/user.go"); frames
// of the main module are matched by module path in that case.
type LocationResolver struct {
	root   string
	module string
	frames FrameSource
	rel    func(basepath, targpath string) (string, error)
}

// NewLocationResolver creates a resolver rooted at root. An empty root uses
// the working directory. The main module path comes from the binary's build
// info.
func NewLocationResolver(root string) *LocationResolver {
	return newLocationResolver(root, RuntimeFrames, filepath.Rel)
}

func newLocationResolver(root string, frames FrameSource, rel func(string, string) (string, error)) *LocationResolver {
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &LocationResolver{
		root:   filepath.ToSlash(filepath.Clean(root)),
		module: mainModulePath(),
		frames: frames,
		rel:    rel,
	}
}

// mainModulePath returns the path of the main module, or "" when the binary
// carries no usable build info.
func mainModulePath() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	switch info.Main.Path {
	case "", "command-line-arguments":
		return ""
	}
	return info.Main.Path
}

// Root returns the project root frames are matched against.
func (r *LocationResolver) Root() string {
	return r.root
}

// Resolve returns the location of the first frame, starting skip frames
// above the caller of Resolve, whose file lies under the root or inside the
// main module. It returns UnknownLocation when there is none and never
// panics.
func (r *LocationResolver) Resolve(skip int) (loc string) {
	defer func() {
		if recover() != nil {
			loc = UnknownLocation
		}
	}()

	// +1 skips Resolve itself.
	for _, f := range r.frames(skip + 1) {
		file := filepath.ToSlash(f.File)
		if r.underRoot(file) {
			return r.format(file, f.Line)
		}
		if rel, ok := r.inModule(file); ok {
			return rel + ":" + strconv.Itoa(f.Line)
		}
	}
	return UnknownLocation
}

// inModule returns file relative to the main module for trimmed paths.
// Versioned paths ("mod@v1.2.3/...") belong to dependencies.
func (r *LocationResolver) inModule(file string) (string, bool) {
	if r.module == "" {
		return "", false
	}
	rel, ok := strings.CutPrefix(file, r.module+"/")
	if !ok || rel == "" || strings.Contains(rel, "@") {
		return "", false
	}
	return rel, true
}

func (r *LocationResolver) underRoot(file string) bool {
	if r.root == "" || r.root == "." {
		return false
	}
	if r.root == "/" {
		return strings.HasPrefix(file, "/")
	}
	return strings.HasPrefix(file, r.root+"/")
}

// format renders file:line relative to the root, degrading to the bare file
// name if the relative path cannot be computed.
func (r *LocationResolver) format(file string, line int) (loc string) {
	base := filepath.Base(file) + ":" + strconv.Itoa(line)
	defer func() {
		if recover() != nil {
			loc = base
		}
	}()

	relPath, err := r.rel(filepath.FromSlash(r.root), filepath.FromSlash(file))
	if err != nil {
		return base
	}
	return filepath.ToSlash(relPath) + ":" + strconv.Itoa(line)
}
