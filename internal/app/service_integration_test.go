package service_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hypeedev/gest/internal/adapters/shell"
	service "github.com/hypeedev/gest/internal/app"
	"github.com/hypeedev/gest/internal/config"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/window"
	"github.com/hypeedev/gest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const integrationConfig = `
watch: true
options:
  move_threshold: 0.1
  edge:
    threshold: 0.05
gestures:
  - name: workspace next
    sequence:
      - fingers: 3
        action: move left
    command: echo next >> %OUT%
application_gestures:
  - class: ^kitty$
    gestures:
      - name: new tab
        sequence:
          - fingers: 3
            action: move right
        command: echo tab >> %OUT%
`

func readLines(path string) []string {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return strings.Fields(string(b))
}

func extraConfig(name string) string {
	return `
gestures:
  - name: extra ` + name + `
    sequence:
      - fingers: 4
        action: move up
    command: "true"
`
}

func hasGesture(gestures []*model.Gesture, name string) bool {
	for _, g := range gestures {
		if g.Name == name {
			return true
		}
	}
	return false
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service built from a config file with a shell runner", t, func() {
		dir := t.TempDir()
		out := filepath.Join(dir, "out.txt")
		cfgPath := filepath.Join(dir, "config.yaml")
		So(os.WriteFile(cfgPath, []byte(strings.ReplaceAll(integrationConfig, "%OUT%", out)), 0o600), ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg, err := config.Load(ctx, cfgPath)
		So(err, ShouldBeNil)
		set, err := cfg.GestureSet()
		So(err, ShouldBeNil)

		reload := func(ctx context.Context) (*window.Set, []string, error) {
			next, err := config.Load(ctx, cfgPath)
			if err != nil {
				return nil, nil, err
			}
			set, err := next.GestureSet()
			if err != nil {
				return nil, nil, err
			}
			return set, next.Files(), nil
		}

		src := newChanSource()
		runner := shell.New(shell.WithShell(cfg.Shell))
		svc := service.New(
			service.WithGestureSet(set),
			service.WithFrameSource(src),
			service.WithRunner(runner),
			service.WithWindowTracker(&fakeTracker{windows: []model.Window{{Class: "kitty", Title: "~"}}}),
			service.WithReload(cfg.Files(), reload),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(eventually(func() bool { return svc.Active().Class == "kitty" }), ShouldBeTrue)
		So(svc.Watched(), ShouldResemble, []string{cfgPath})

		Convey("When global and scoped swipes are performed", func() {
			for _, f := range swipe(3, -0.3, 6) {
				src.ch <- f
			}
			for _, f := range swipe(3, 0.3, 6) {
				src.ch <- f
			}

			Convey("Then both commands run in order", func() {
				So(eventually(func() bool { return len(readLines(out)) == 2 }), ShouldBeTrue)
				So(runner.Wait(ctx), ShouldBeNil)
				So(readLines(out), ShouldResemble, []string{"next", "tab"})
			})
		})

		Convey("When the config file changes", func() {
			changed := strings.ReplaceAll(integrationConfig, "%OUT%", out)
			changed = strings.Replace(changed, "echo next", "echo prev", 1)
			So(os.WriteFile(cfgPath, []byte(changed), 0o600), ShouldBeNil)

			Convey("Then the new gesture set is used after reload", func() {
				So(eventually(func() bool {
					g, ok := svc.GetStats()["generation"].(uint64)
					return ok && g > 1
				}), ShouldBeTrue)

				for _, f := range swipe(3, -0.3, 6) {
					src.ch <- f
				}
				So(eventually(func() bool { return len(readLines(out)) == 1 }), ShouldBeTrue)
				So(runner.Wait(ctx), ShouldBeNil)
				So(readLines(out), ShouldResemble, []string{"prev"})
			})
		})

		Convey("When a reload adds an import", func() {
			extra := filepath.Join(dir, "extra.yaml")
			So(os.WriteFile(extra, []byte(extraConfig("one")), 0o600), ShouldBeNil)
			withImport := "import: [extra.yaml]\n" + strings.ReplaceAll(integrationConfig, "%OUT%", out)
			So(os.WriteFile(cfgPath, []byte(withImport), 0o600), ShouldBeNil)

			Convey("Then the imported file is watched as well", func() {
				So(eventually(func() bool { return slices.Contains(svc.Watched(), extra) }), ShouldBeTrue)
				So(eventually(func() bool { return hasGesture(svc.Eligible(), "extra one") }), ShouldBeTrue)

				So(os.WriteFile(extra, []byte(extraConfig("two")), 0o600), ShouldBeNil)
				So(eventually(func() bool { return hasGesture(svc.Eligible(), "extra two") }), ShouldBeTrue)
			})
		})

		Convey("When the config file is broken", func() {
			So(os.WriteFile(cfgPath, []byte("gestures: [{ name: x }]\n"), 0o600), ShouldBeNil)
			time.Sleep(300 * time.Millisecond)

			Convey("Then the previous gestures stay active", func() {
				So(svc.GetStats()["generation"], ShouldEqual, uint64(1))
				So(svc.Eligible(), ShouldHaveLength, 2)
			})
		})
	})
}
