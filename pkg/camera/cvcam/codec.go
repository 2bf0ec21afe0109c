package cvcam

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

// Codec is a libjpeg-turbo backed JPEG codec for the image converter.
type Codec struct{}

func (Codec) Encode(w io.Writer, img image.Image, quality int) error {
	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("converting image: %w", err)
	}
	defer rgb.Close()

	// ImageToMatRGB yields BGR channel order, which is what imencode expects.
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, rgb, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return err
	}
	defer buf.Close()
	_, err = w.Write(buf.GetBytes())
	return err
}

func (Codec) Decode(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("not a decodable image")
	}
	return mat.ToImage()
}
