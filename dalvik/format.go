package dalvik

// Instruction formats per opcode, named the usual way: the first digit
// is the size in code units, the second the register count, and the
// letter the kind of extra payload (n/s/i literals, t branch targets,
// c pool references, h high constants, x none).
var formats = [256]string{
	"10x", "12x", "22x", "32x", "12x", "22x", "32x", "12x", "22x", "32x",
	"11x", "11x", "11x", "11x", "10x", "11x", "11x", "11x", "11n", "21s",
	"31i", "21h", "21s", "31i", "51l", "21h", "21c", "31c", "21c", "11x",
	"11x", "21c", "22c", "12x", "21c", "22c", "35c", "3rc", "31t", "11x",
	"10t", "20t", "30t", "31t", "31t", "23x", "23x", "23x", "23x", "23x",
	"22t", "22t", "22t", "22t", "22t", "22t", "21t", "21t", "21t", "21t",
	"21t", "21t", "10x", "10x", "10x", "10x", "10x", "10x", "23x", "23x",
	"23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x",
	"23x", "23x", "22c", "22c", "22c", "22c", "22c", "22c", "22c", "22c",
	"22c", "22c", "22c", "22c", "22c", "22c", "21c", "21c", "21c", "21c",
	"21c", "21c", "21c", "21c", "21c", "21c", "21c", "21c", "21c", "21c",
	"35c", "35c", "35c", "35c", "35c", "10x", "3rc", "3rc", "3rc", "3rc",
	"3rc", "10x", "10x", "12x", "12x", "12x", "12x", "12x", "12x", "12x",
	"12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x",
	"12x", "12x", "12x", "12x", "23x", "23x", "23x", "23x", "23x", "23x",
	"23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x",
	"23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x", "23x",
	"23x", "23x", "23x", "23x", "23x", "23x", "12x", "12x", "12x", "12x",
	"12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x",
	"12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x",
	"12x", "12x", "12x", "12x", "12x", "12x", "12x", "12x", "22s", "22s",
	"22s", "22s", "22s", "22s", "22s", "22s", "22b", "22b", "22b", "22b",
	"22b", "22b", "22b", "22b", "22b", "22b", "22b", "10x", "10x", "10x",
	"10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x",
	"10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x", "10x",
	"10x", "10x", "10x", "10x", "10x", "10x",
}

// FormatOf returns the format name of op, e.g. "35c" for the invoke
// family.
func FormatOf(op uint8) string { return formats[op] }

// sizeOf returns the instruction size in code units before payload
// adjustment.
func sizeOf(op uint8) uint32 { return uint32(formats[op][0] - '0') }
