package interactor

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/cherrydra/mcpvariants/features"
	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

var (
	_ readline.AutoCompleter = (*varcurlCompleter)(nil)
)

type varcurlCompleter struct {
	ctx context.Context
	s   *features.ServerFeatures

	once      sync.Once
	completer *readline.PrefixCompleter
}

func (c *varcurlCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	c.once.Do(func() {
		c.completer = readline.NewPrefixCompleter(
			readline.PcItem("variants"),
			readline.PcItem("use", readline.PcItemDynamic(c.listVariants)),
			readline.PcItem("tools"),
			readline.PcItem("prompts"),
			readline.PcItem("resources"),
			readline.PcItem("tool", readline.PcItemDynamic(
				c.listTools,
				readline.PcItemDynamic(searchFiles)),
			),
			readline.PcItem("prompt", readline.PcItemDynamic(
				c.listPrompts,
				readline.PcItemDynamic(searchFiles)),
			),
			readline.PcItem("resource", readline.PcItemDynamic(
				c.listResources),
			),
			readline.PcItem("ctx",
				readline.PcItem("clear"),
				readline.PcItem("new"),
				readline.PcItem("list"),
				readline.PcItem("switch"),
				readline.PcItem("delete"),
			),
			readline.PcItem("msg"),
			readline.PcItem("cat"),
			readline.PcItem("cd"),
			readline.PcItem("clear"),
			readline.PcItem("connect"),
			readline.PcItem("disconnect"),
			readline.PcItem("exit"),
			readline.PcItem("export"),
			readline.PcItem("env"),
			readline.PcItem("help"),
			readline.PcItem("ls"),
			readline.PcItem("pwd"),
			readline.PcItem("status"),
			readline.PcItem("version"),
		)
	})
	return c.completer.Do(line, pos)
}

func (c *varcurlCompleter) listVariants(prefix string) (ret []string) {
	args, _ := shlex.Split(prefix)
	vs, _, err := c.s.ListVariants()
	if err != nil {
		return nil
	}
	for _, v := range vs {
		if len(args) > 1 && !strings.HasPrefix(v.ID, args[1]) {
			continue
		}
		ret = append(ret, v.ID)
	}
	return
}

func (c *varcurlCompleter) listTools(prefix string) (ret []string) {
	args, _ := shlex.Split(prefix)
	tools, err := c.s.ListTools(c.ctx)
	if err != nil {
		return nil
	}
	for _, tool := range tools {
		if len(args) > 1 && !strings.HasPrefix(tool.Name, args[1]) {
			continue
		}
		ret = append(ret, tool.Name)
	}
	return
}

func (c *varcurlCompleter) listPrompts(prefix string) (ret []string) {
	args, _ := shlex.Split(prefix)
	prompts, err := c.s.ListPrompts(c.ctx)
	if err != nil {
		return nil
	}
	for _, prompt := range prompts {
		if len(args) > 1 && !strings.HasPrefix(prompt.Name, args[1]) {
			continue
		}
		ret = append(ret, prompt.Name)
	}
	return
}

func (c *varcurlCompleter) listResources(prefix string) (ret []string) {
	args, _ := shlex.Split(prefix)
	resources, err := c.s.ListResources(c.ctx)
	if err != nil {
		return nil
	}
	for _, resource := range resources {
		if len(args) > 1 && !strings.HasPrefix(resource.Name, args[1]) {
			continue
		}
		ret = append(ret, resource.Name)
	}
	return
}

func searchFiles(s string) (ret []string) {
	args, _ := shlex.Split(s)
	if len(args) <= 2 || !strings.HasPrefix(args[2], "@") {
		return nil
	}

	files, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ret = append(ret, "@"+file.Name())
	}
	return
}
