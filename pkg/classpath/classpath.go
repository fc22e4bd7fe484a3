// Package classpath locates and parses class files from directories, jar
// archives and JDK jmod files.
package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// ErrClassNotFound is returned when no entry of the class path has the class.
var ErrClassNotFound = errors.New("class not found")

// Loader loads class files by internal name, e.g. java/lang/Integer.
type Loader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// cache is a concurrency-safe parsed-class cache.
type cache struct {
	mu      sync.Mutex
	classes map[string]*classfile.ClassFile
}

func (c *cache) get(name string) (*classfile.ClassFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, ok := c.classes[name]
	return cf, ok
}

// put stores cf unless another goroutine got there first, and returns the
// cached instance.
func (c *cache) put(name string, cf *classfile.ClassFile) *classfile.ClassFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.classes == nil {
		c.classes = make(map[string]*classfile.ClassFile)
	}
	if prev, ok := c.classes[name]; ok {
		return prev
	}
	c.classes[name] = cf
	return cf
}

// DirLoader loads classes from a directory tree.
type DirLoader struct {
	Root  string
	cache cache
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{Root: root}
}

func (l *DirLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := l.cache.get(name); ok {
		return cf, nil
	}
	path := filepath.Join(l.Root, filepath.FromSlash(name)+".class")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dir %s: %s: %w", l.Root, name, ErrClassNotFound)
	}
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("dir %s: parsing %s: %w", l.Root, name, err)
	}
	return l.cache.put(name, cf), nil
}

// archive is a zip-backed loader shared by jar and jmod files. Entries are
// looked up as prefix + name + ".class".
type archive struct {
	path   string
	prefix string
	header int

	once    sync.Once
	openErr error
	files   map[string]*zip.File
	cache   cache
}

func (a *archive) open() error {
	a.once.Do(func() {
		data, err := os.ReadFile(a.path)
		if err != nil {
			a.openErr = fmt.Errorf("opening %s: %w", a.path, err)
			return
		}
		if len(data) < a.header {
			a.openErr = fmt.Errorf("%s: file too short", a.path)
			return
		}
		data = data[a.header:]
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			a.openErr = fmt.Errorf("%s: opening zip: %w", a.path, err)
			return
		}
		a.files = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			a.files[f.Name] = f
		}
	})
	return a.openErr
}

func (a *archive) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := a.cache.get(name); ok {
		return cf, nil
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	target := a.prefix + name + ".class"
	f, ok := a.files[target]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", a.path, name, ErrClassNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: opening %s: %w", a.path, target, err)
	}
	defer rc.Close()
	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing %s: %w", a.path, name, err)
	}
	return a.cache.put(name, cf), nil
}

// JarLoader loads classes from a jar file.
type JarLoader struct{ archive }

func NewJarLoader(path string) *JarLoader {
	return &JarLoader{archive{path: path}}
}

// JmodLoader loads classes from a JDK jmod file. A jmod is a zip archive
// behind a 4-byte "JM\x01\x00" header with classes under classes/.
type JmodLoader struct{ archive }

func NewJmodLoader(path string) *JmodLoader {
	return &JmodLoader{archive{path: path, prefix: "classes/", header: 4}}
}

// Chain tries each loader in order, parent first.
type Chain []Loader

func (c Chain) LoadClass(name string) (*classfile.ClassFile, error) {
	for _, l := range c {
		cf, err := l.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
}

// New builds a chain from class path entries: directories, .jar and .jmod
// files. The jmod, when given, is searched first.
func New(jmod string, entries []string) (Chain, error) {
	var chain Chain
	if jmod != "" {
		chain = append(chain, NewJmodLoader(jmod))
	}
	for _, e := range entries {
		if e == "" {
			continue
		}
		switch strings.ToLower(filepath.Ext(e)) {
		case ".jar", ".zip":
			chain = append(chain, NewJarLoader(e))
		case ".jmod":
			chain = append(chain, NewJmodLoader(e))
		default:
			info, err := os.Stat(e)
			if err != nil {
				return nil, fmt.Errorf("class path entry %s: %w", e, err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("class path entry %s: not a directory, jar or jmod", e)
			}
			chain = append(chain, NewDirLoader(e))
		}
	}
	return chain, nil
}
