package loader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/m2isa/alloc"
	"github.com/sarchlab/m2isa/arch"
	"github.com/sarchlab/m2isa/loader"
)

const modelJSON = `{
  "model_version": 1,
  "cores": [
    {
      "name": "RV32I",
      "instructions": [
        {
          "name": "add",
          "operands": [
            {"name": "rd", "width": 32},
            {"name": "rs1", "width": 32},
            {"name": "rs2", "width": 32}
          ],
          "encoding": [
            {"length": 7, "value": 0},
            {"field": "rs2", "upper": 4},
            {"field": "rs1", "upper": 4},
            {"length": 3, "value": 0},
            {"field": "rd", "upper": 4},
            {"length": 7, "value": 51}
          ]
        }
      ]
    }
  ],
  "sets": [
    {
      "name": "XSimd",
      "instructions": [
        {
          "name": "cv.add{rs1.width}{rs1.sign}",
          "operands": [
            {"name": "rd", "width": 32},
            {"name": "rs1", "widths": [8, 16], "sign": "us"},
            {"name": "rs2", "width": 32}
          ]
        },
        {
          "name": "cv.addi",
          "operands": [
            {"name": "rd", "width": 32},
            {"name": "rs1", "width": 32},
            {"name": "imm12", "width": 12, "sign": "s"}
          ]
        }
      ]
    }
  ]
}`

var _ = Describe("Model loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "model-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	Describe("Load", func() {
		var model *arch.Model

		BeforeEach(func() {
			var err error
			model, err = loader.Load(write("model.json", modelJSON))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should file encoded instructions by key", func() {
			Expect(model.Cores).To(HaveLen(1))
			core := model.Cores[0]
			Expect(core.Unencoded).To(BeEmpty())

			add, ok := core.Instructions[arch.Key{Code: 0x33, Mask: 0xFE00707F}]
			Expect(ok).To(BeTrue())
			Expect(add.Name).To(Equal("add"))
			Expect(add.Size).To(Equal(32))
		})

		It("should expand operand variants into separate instructions", func() {
			set := model.Sets[0]
			var names []string
			for _, instr := range set.Unencoded {
				names = append(names, instr.Name)
			}
			Expect(names).To(Equal([]string{
				"cv.add.bu", "cv.add.bs", "cv.add.wu", "cv.add.ws", "cv.addi",
			}))

			rs1, ok := set.Unencoded[1].Operands.Lookup("rs1")
			Expect(ok).To(BeTrue())
			Expect(rs1.Width).To(Equal(8))
			Expect(rs1.Signed).To(BeTrue())
		})

		It("should infer immediates from the operand name", func() {
			addi := model.Sets[0].Unencoded[4]
			imm, ok := addi.Operands.Lookup("imm12")
			Expect(ok).To(BeTrue())
			Expect(imm.Immediate).To(BeTrue())
			Expect(imm.Signed).To(BeTrue())

			rs1, _ := addi.Operands.Lookup("rs1")
			Expect(rs1.Immediate).To(BeFalse())
		})
	})

	It("should warn about a version mismatch and keep loading", func() {
		var buf bytes.Buffer
		content := strings.Replace(modelJSON, `"model_version": 1`, `"model_version": 7`, 1)

		model, err := loader.Load(write("old.json", content), loader.WithLogger(zerolog.New(&buf)))
		Expect(err).NotTo(HaveOccurred())
		Expect(model.Version).To(Equal(arch.ModelVersion))
		Expect(buf.String()).To(ContainSubstring("loaded model version mismatch"))
		Expect(buf.String()).To(ContainSubstring(`"file":7`))
	})

	DescribeTable("rejecting malformed models",
		func(content, msg string) {
			_, err := loader.Load(write("bad.json", content))
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("invalid JSON", `{"model_version": `, "failed to parse model"),
		Entry("variant names colliding",
			`{"sets": [{"name": "X", "instructions": [{"name": "op", "operands": [{"name": "rs1", "widths": [8, 16]}]}]}]}`,
			"duplicate instruction op"),
		Entry("operand without width",
			`{"sets": [{"name": "X", "instructions": [{"name": "op", "operands": [{"name": "rs1"}]}]}]}`,
			"operand rs1"),
		Entry("encoding field without kind",
			`{"sets": [{"name": "X", "instructions": [{"name": "op", "encoding": [{"length": 3}]}]}]}`,
			"neither a value nor an operand"),
		Entry("encoding shorter than declared size",
			`{"sets": [{"name": "X", "instructions": [{"name": "op", "size": 32, "encoding": [{"length": 7, "value": 11}]}]}]}`,
			"encoding covers 7 bits"),
	)

	It("should fail on a missing file", func() {
		_, err := loader.Load(filepath.Join(tempDir, "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("failed to open model file")))
	})

	It("should round-trip an encoded model", func() {
		model, err := loader.Load(write("model.json", modelJSON))
		Expect(err).NotTo(HaveOccurred())

		_, err = alloc.NewEncoder().EncodeModel(model)
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(tempDir, "encoded.json")
		Expect(loader.Save(path, model)).To(Succeed())

		reloaded, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.Sets).To(HaveLen(1))

		set := reloaded.Sets[0]
		Expect(set.Unencoded).To(BeEmpty())
		Expect(set.Instructions).To(HaveLen(5))
		for key, instr := range model.Sets[0].Instructions {
			again, ok := set.Instructions[key]
			Expect(ok).To(BeTrue(), "instruction %s", instr.Name)
			Expect(again.Name).To(Equal(instr.Name))
			Expect(again.Operands).To(Equal(instr.Operands))
			Expect(again.Encoding).To(Equal(instr.Encoding))
		}
	})
})
