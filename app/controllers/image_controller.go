package controllers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/transform"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/upload"
)

type ImageController struct {
	transform *transform.Service
}

func NewImageController(svc *transform.Service) *ImageController {
	return &ImageController{transform: svc}
}

// HandleTransform restyles the uploaded image for one credit.
func (ic *ImageController) HandleTransform(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_image", "An image file is required")
	}
	if err := upload.ValidateSize(fh.Size); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_image", err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return renderError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, upload.MaxImageBytes+1))
	if err != nil {
		return renderError(c, err)
	}

	out, err := ic.transform.Transform(c.UserContext(), transform.Input{
		UserID:   userID,
		Filename: fh.Filename,
		Data:     data,
		Style:    c.FormValue("style"),
	})
	if err != nil {
		return renderError(c, err)
	}

	img := out.Image
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                     img.ID,
		"uuid":                   img.UUID,
		"style":                  img.Style,
		"image_url":              img.ImageURL,
		"preview_url":            img.PreviewURL,
		"width":                  img.Width,
		"height":                 img.Height,
		"download_token":         out.DownloadToken,
		"token_expires_at":       img.DownloadTokenExpiry,
		"updated_credit_balance": out.Balance,
	})
}

// HandleRecent lists recent previews of all users.
func (ic *ImageController) HandleRecent(c *fiber.Ctx) error {
	views, err := ic.transform.Recent(c.UserContext(), c.QueryInt("limit", transform.DefaultRecentLimit))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(views)
}

// HandleMine lists the caller's images.
func (ic *ImageController) HandleMine(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	views, total, err := ic.transform.Mine(c.UserContext(), userID, page, pageSize)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"images": views, "total": total, "page": page})
}

// HandleDownload streams the full-size image when the token is valid.
func (ic *ImageController) HandleDownload(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return nil
	}

	body, img, err := ic.transform.Download(c.UserContext(), userID, imageID, c.Query("token"))
	if err != nil {
		return renderError(c, err)
	}
	c.Attachment(transform.DownloadFilename(img.ID))
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(body)
}

// HandleReissueToken issues a fresh download token for the caller's image.
func (ic *ImageController) HandleReissueToken(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return nil
	}
	token, img, err := ic.transform.ReissueToken(c.UserContext(), userID, imageID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{
		"id":               img.ID,
		"download_token":   token,
		"token_expires_at": img.DownloadTokenExpiry,
	})
}

// HandleStyles lists the supported styles.
func (ic *ImageController) HandleStyles(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"styles": transform.Styles(), "default": transform.DefaultStyle})
}
