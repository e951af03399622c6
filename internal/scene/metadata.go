package scene

import (
	"bufio"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sidecar file layout:
//
//	PanoramaViewerAuxiliaryFile,CYL|EQR,w,h,hfov,vfov,cropL,cropT,cropR,cropB;
//
// One line, comma separated, terminated by a semicolon. Angles in radians.
const sidecarSignature = "PanoramaViewerAuxiliaryFile"

// SidecarExt is the file extension of panorama sidecar files.
const SidecarExt = ".pnv"

// SidecarPath returns the sidecar file name matching a picture file name
// (extension replaced by .pnv).
func SidecarPath(picturePath string) string {
	ext := filepath.Ext(picturePath)
	return picturePath[:len(picturePath)-len(ext)] + SidecarExt
}

// LoadSidecar reads scene metadata from a sidecar file.
func LoadSidecar(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read sidecar: %w", err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), ";")
	fields := strings.Split(line, ",")
	if len(fields) != 10 {
		return Metadata{}, fmt.Errorf("parse sidecar %s: expected 10 fields, got %d", path, len(fields))
	}
	if fields[0] != sidecarSignature {
		return Metadata{}, fmt.Errorf("parse sidecar %s: missing file signature", path)
	}

	var m Metadata
	switch fields[1] {
	case "CYL":
		m.Projection = CentralCylindrical
	case "EQR":
		m.Projection = Equirectangular
	default:
		return Metadata{}, fmt.Errorf("parse sidecar %s: unsupported projection type %q", path, fields[1])
	}

	ints := make([]int, 0, 6)
	for _, i := range []int{2, 3, 6, 7, 8, 9} {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Metadata{}, fmt.Errorf("parse sidecar %s: field %d: %w", path, i, err)
		}
		ints = append(ints, v)
	}
	floats := make([]float64, 0, 2)
	for _, i := range []int{4, 5} {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse sidecar %s: field %d: %w", path, i, err)
		}
		floats = append(floats, v)
	}

	m.UncroppedSize = image.Pt(ints[0], ints[1])
	m.UncroppedFOV = FOV{H: floats[0], V: floats[1]}
	m.CropTL = image.Pt(ints[2], ints[3])
	m.CropBR = image.Pt(ints[4], ints[5])

	return m, nil
}

// SaveSidecar writes the metadata to a sidecar file.
func (m Metadata) SaveSidecar(path string) error {
	line := fmt.Sprintf("%s,%s,%d,%d,%s,%s,%d,%d,%d,%d;\n",
		sidecarSignature, m.Projection,
		m.UncroppedSize.X, m.UncroppedSize.Y,
		strconv.FormatFloat(m.UncroppedFOV.H, 'f', 7, 64),
		strconv.FormatFloat(m.UncroppedFOV.V, 'f', 7, 64),
		m.CropTL.X, m.CropTL.Y,
		m.CropBR.X, m.CropBR.Y)

	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// LoadHuginProject extracts scene metadata from a Hugin project (.pto) file.
//
// Only the panorama line ("p ...") of the project file is needed. The
// vertical field of view is not stored in project files and is derived from
// the horizontal one, the picture aspect ratio and the projection type.
func LoadHuginProject(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open project file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	line, err := scanLine(scanner)
	if err != nil || line != "# hugin project file" {
		return Metadata{}, fmt.Errorf("parse %s: not a Hugin project file", path)
	}
	line, err = scanLine(scanner)
	if err != nil || line != "#hugin_ptoversion 2" {
		return Metadata{}, fmt.Errorf("parse %s: unsupported Hugin project version", path)
	}
	line, err = scanLine(scanner)
	if err != nil || !strings.HasPrefix(line, "p f") {
		return Metadata{}, fmt.Errorf("parse %s: unexpected project file content", path)
	}

	// Panorama line, e.g.:
	//   p f2 w6000 h3000 v360  k0 E0 R0 S100,5900,200,2800 n"TIFF_m c:LZW"
	// Token positions are fixed, including the empty token from the double
	// space after the HFOV.
	tokens := strings.Split(line, " ")
	if len(tokens) < 10 {
		return Metadata{}, fmt.Errorf("parse %s: malformed panorama line", path)
	}

	proj, err := numericToken(tokens[1], "f")
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	w, err := numericToken(tokens[2], "w")
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	h, err := numericToken(tokens[3], "h")
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	hfovDeg, err := numericToken(tokens[4], "v")
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if !strings.HasPrefix(tokens[9], "S") {
		return Metadata{}, fmt.Errorf("parse %s: missing crop rectangle", path)
	}

	var cropL, cropR, cropT, cropB int
	if _, err := fmt.Sscanf(tokens[9][1:], "%d,%d,%d,%d", &cropL, &cropR, &cropT, &cropB); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: malformed crop rectangle: %w", path, err)
	}

	hfov := hfovDeg * math.Pi / 180

	var m Metadata
	switch int(proj) {
	case 1:
		m.Projection = CentralCylindrical
		m.UncroppedFOV = FOV{H: hfov, V: 2 * math.Atan(hfov*h/w/2)}
	case 2:
		m.Projection = Equirectangular
		m.UncroppedFOV = FOV{H: hfov, V: hfov * h / w}
	default:
		return Metadata{}, fmt.Errorf("parse %s: unsupported projection type %d", path, int(proj))
	}

	m.UncroppedSize = image.Pt(int(w), int(h))
	m.CropTL = image.Pt(cropL, cropT)
	m.CropBR = image.Pt(cropR, cropB)

	return m, nil
}

func scanLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected end of file")
	}
	return scanner.Text(), nil
}

// numericToken parses a token like "w6000" after checking its key prefix.
func numericToken(token, key string) (float64, error) {
	if !strings.HasPrefix(token, key) {
		return 0, fmt.Errorf("expected %q token, got %q", key, token)
	}
	v, err := strconv.ParseFloat(token[len(key):], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %q token %q: %w", key, token, err)
	}
	return v, nil
}
