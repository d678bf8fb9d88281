package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/imaging"
	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/queue"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/storage"
	"imagestudio-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerationHandler is the Intake Controller: it validates a generation
// request, persists the job in a pending status, and enqueues it —
// mirroring the teacher's presign/finalize upload flow's shape of
// "validate ownership, do the async part, return 202 with a status URL"
// but built around the job queue instead of an S3 presigned PUT. Tokens
// are never charged here; the Worker Pool debits the ledger only after a
// successful provider call, so a generation that never runs is never
// paid for.
type GenerationHandler struct {
	opTypes     *repositories.OperationTypeRepository
	templates   *repositories.PromptTemplateRepository
	generations *repositories.GenerationRepository
	uploads     *repositories.UploadRepository
	storage     *storage.Facade
	queue       *queue.Queue
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(
	opTypes *repositories.OperationTypeRepository,
	templates *repositories.PromptTemplateRepository,
	generations *repositories.GenerationRepository,
	uploads *repositories.UploadRepository,
	storage *storage.Facade,
	q *queue.Queue,
) *GenerationHandler {
	return &GenerationHandler{
		opTypes:     opTypes,
		templates:   templates,
		generations: generations,
		uploads:     uploads,
		storage:     storage,
		queue:       q,
	}
}

// ListOperations serves the operation-type catalog, including the
// current token cost of each kind.
func (h *GenerationHandler) ListOperations(c *gin.Context) {
	ops, err := h.opTypes.ListEnabled(c.Request.Context())
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Operations retrieved", ops)
}

// commonFields are the request attributes every intake endpoint shares on
// top of its own prompt/image inputs.
type commonFields struct {
	NumberOfImages   int                  `form:"numberOfImages" json:"numberOfImages"`
	AspectRatio      string               `form:"aspectRatio" json:"aspectRatio"`
	NegativePrompt   string               `form:"negativePrompt" json:"negativePrompt"`
	ProjectID        uuid.UUID            `form:"projectId" json:"projectId"`
	PromptTemplateID string               `form:"promptTemplateId" json:"promptTemplateId"`
	ReferenceType    models.ReferenceType `form:"referenceType" json:"referenceType"`
}

const (
	minImagesPerGeneration = 1
	maxImagesPerGeneration = 4
)

type textToImageRequest struct {
	Prompt string `json:"prompt" binding:"required,min=5,max=4000"`
	commonFields
}

// CreateTextToImage intakes a prompt-only generation.
func (h *GenerationHandler) CreateTextToImage(c *gin.Context) {
	var req textToImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	h.intake(c, intakeParams{
		operationType: models.OperationTextToImage,
		prompt:        req.Prompt,
		common:        req.commonFields,
	})
}

type imageReferenceRequest struct {
	Prompt   string    `form:"prompt" json:"prompt" binding:"required,min=5,max=4000"`
	UploadID uuid.UUID `form:"uploadId" json:"referenceImageId"`
	commonFields
}

// CreateImageReference intakes a prompt plus exactly one input image,
// supplied either as a fresh multipart file or a reference to a prior
// upload.
func (h *GenerationHandler) CreateImageReference(c *gin.Context) {
	var req imageReferenceRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	input, err := h.resolveInput(c, req.UploadID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	h.intake(c, intakeParams{
		operationType: models.OperationImageReference,
		prompt:        req.Prompt,
		inputs:        []models.InputRef{*input},
		common:        req.commonFields,
	})
}

type imageMultiReferenceRequest struct {
	Prompt             string      `form:"prompt" json:"prompt" binding:"required,min=5,max=4000"`
	TargetUploadID     uuid.UUID   `form:"targetImageId" json:"targetImageId"`
	ReferenceUploadIDs []uuid.UUID `form:"referenceImageIds" json:"referenceImageIds"`
	commonFields
}

// CreateImageMultiReference intakes a prompt, exactly one target image,
// and one to an operation's MaxInputImages reference images. The
// provider's documented input ordering is "text + target + refs", so the
// two image roles are tracked separately rather than flattened into a
// single list.
func (h *GenerationHandler) CreateImageMultiReference(c *gin.Context) {
	var req imageMultiReferenceRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	op, err := h.opTypes.GetByCode(c.Request.Context(), models.OperationImageMultiReference)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if op == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "operation type not configured", nil)
		return
	}

	form, _ := c.MultipartForm()
	var targetFile *multipart.FileHeader
	var referenceFiles []*multipart.FileHeader
	if form != nil {
		if files := form.File["targetImage"]; len(files) > 0 {
			targetFile = files[0]
		}
		referenceFiles = form.File["referenceImages"]
	}

	hasTarget := req.TargetUploadID != uuid.Nil || targetFile != nil
	if !hasTarget {
		utils.SendValidationError(c, fmt.Errorf("exactly one targetImage is required"))
		return
	}

	totalRefs := len(req.ReferenceUploadIDs) + len(referenceFiles)
	if totalRefs == 0 {
		utils.SendValidationError(c, fmt.Errorf("at least one reference image is required"))
		return
	}
	if totalRefs > op.MaxInputImages {
		utils.SendValidationError(c, fmt.Errorf("at most %d reference images are allowed for this operation", op.MaxInputImages))
		return
	}

	var target *models.InputRef
	if targetFile != nil {
		target, err = h.resolveFreshUpload(c, targetFile)
	} else {
		target, err = h.resolveInput(c, req.TargetUploadID)
	}
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	refs := make([]models.InputRef, 0, totalRefs)
	for _, uploadID := range req.ReferenceUploadIDs {
		input, err := h.resolveInput(c, uploadID)
		if err != nil {
			utils.SendAppError(c, err)
			return
		}
		refs = append(refs, *input)
	}
	for _, fileHeader := range referenceFiles {
		input, err := h.resolveFreshUpload(c, fileHeader)
		if err != nil {
			utils.SendAppError(c, err)
			return
		}
		refs = append(refs, *input)
	}

	h.intake(c, intakeParams{
		operationType: models.OperationImageMultiReference,
		prompt:        req.Prompt,
		inputs:        refs,
		target:        []models.InputRef{*target},
		common:        req.commonFields,
	})
}

// resolveInput resolves the ImageInput sum type for a single-image
// request: an already-uploaded image (by ID, ownership-checked) or a
// freshly attached multipart file.
func (h *GenerationHandler) resolveInput(c *gin.Context, uploadID uuid.UUID) (*models.InputRef, error) {
	if uploadID != uuid.Nil {
		userID, _ := currentUserID(c)
		upload, err := h.uploads.GetByID(c.Request.Context(), userID, uploadID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "look up upload", err)
		}
		if upload == nil {
			return nil, apperrors.New(apperrors.KindNotFound, "uploadId not found")
		}
		return &models.InputRef{UploadID: upload.UploadID, URL: upload.URL}, nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "either uploadId or image is required")
	}
	return h.resolveFreshUpload(c, fileHeader)
}

func (h *GenerationHandler) resolveFreshUpload(c *gin.Context, fileHeader *multipart.FileHeader) (*models.InputRef, error) {
	userID, _ := currentUserID(c)
	file, err := fileHeader.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "read uploaded file", err)
	}

	validation, err := imaging.ValidateImage(data, "reference")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid reference image", err)
	}

	mimeType := "image/" + validation.Format

	upload, err := h.storage.Put(c.Request.Context(), userID, "references", data, mimeType)
	if err != nil {
		return nil, err
	}
	upload.Width = validation.Width
	upload.Height = validation.Height
	upload.Sha256 = validation.ContentHash
	if err := h.uploads.Create(c.Request.Context(), upload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "record upload", err)
	}
	return &models.InputRef{UploadID: upload.UploadID, URL: upload.URL}, nil
}

// intakeParams bundles everything intake needs beyond the caller's
// identity: the operation kind, the prompt, its resolved input images,
// and the shared optional request fields.
type intakeParams struct {
	operationType string
	prompt        string
	inputs        []models.InputRef
	target        []models.InputRef
	common        commonFields
}

// intake runs the shared validate-then-enqueue sequence every operation
// kind funnels through: confirm the operation exists, create the
// generation row in pending/queued status, then enqueue the job. No
// tokens are charged here — the Worker Pool debits the ledger only after
// a successful provider call, so a request that is rejected or fails
// downstream is never charged. A caller with an empty balance still gets
// a 202 and a job that later resolves to a failed/insufficient_tokens
// event instead of a synchronous rejection.
func (h *GenerationHandler) intake(c *gin.Context, p intakeParams) {
	ctx := c.Request.Context()
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}

	op, err := h.opTypes.GetByCode(ctx, p.operationType)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if op == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "operation type not configured", nil)
		return
	}

	numberOfImages := p.common.NumberOfImages
	if numberOfImages == 0 {
		numberOfImages = minImagesPerGeneration
	}
	if numberOfImages < minImagesPerGeneration || numberOfImages > maxImagesPerGeneration {
		utils.SendValidationError(c, fmt.Errorf("numberOfImages must be between %d and %d", minImagesPerGeneration, maxImagesPerGeneration))
		return
	}

	gen := &models.Generation{
		UserID:         userID,
		OperationType:  p.operationType,
		Prompt:         p.prompt,
		Inputs:         models.InputRefList(p.inputs),
		TargetInput:    models.InputRefList(p.target),
		NumberOfImages: numberOfImages,
	}
	if p.common.ProjectID != uuid.Nil {
		gen.ProjectID = &p.common.ProjectID
	}
	if p.common.AspectRatio != "" {
		gen.AspectRatio = &p.common.AspectRatio
	}
	if p.common.NegativePrompt != "" {
		gen.NegativePrompt = &p.common.NegativePrompt
	}
	if p.common.PromptTemplateID != "" {
		gen.PromptTemplateID = &p.common.PromptTemplateID
	}
	if p.common.ReferenceType != "" {
		gen.ReferenceType = &p.common.ReferenceType
	}

	if err := h.generations.Create(ctx, gen); err != nil {
		utils.SendAppError(c, err)
		return
	}

	if err := h.queue.Enqueue(ctx, &queue.Job{
		ID:            gen.GenerationID,
		GenerationID:  gen.GenerationID,
		UserID:        userID,
		OperationType: p.operationType,
		Priority:      queue.PriorityNormal,
	}); err != nil {
		utils.SendAppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, utils.Response{
		Success: true,
		Message: "Generation queued",
		Data: gin.H{
			"generation": gen,
			"statusUrl":  fmt.Sprintf("/api/generate/queue/%s", gen.GenerationID),
		},
	})
}

// ListPromptTemplates serves the starter-prompt catalog for a given
// operation type.
func (h *GenerationHandler) ListPromptTemplates(c *gin.Context) {
	operationType := c.Query("operationType")
	if operationType == "" {
		utils.SendValidationError(c, fmt.Errorf("operationType query parameter is required"))
		return
	}
	templates, err := h.templates.ListByOperationType(c.Request.Context(), operationType)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Prompt templates retrieved", templates)
}

// GetQueueStatus returns a single generation's current status.
func (h *GenerationHandler) GetQueueStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}

	gen, err := h.generations.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if gen == nil {
		utils.SendError(c, http.StatusNotFound, "generation not found", nil)
		return
	}
	utils.SendSuccess(c, "Generation status retrieved", gen)
}

// CancelGeneration cancels a caller's own queued generation; a
// generation already processing is not affected. No tokens have ever
// been charged against a queued generation, so there is nothing to
// refund.
func (h *GenerationHandler) CancelGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := h.generations.Cancel(c.Request.Context(), userID, id); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Generation cancelled", gin.H{"generationId": id})
}

// GetMyQueue lists the caller's in-flight generations.
func (h *GenerationHandler) GetMyQueue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}
	rows, err := h.generations.ListQueue(c.Request.Context(), userID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Queue retrieved", rows)
}

// QueueMetrics exposes the Job Queue's depth per priority band.
func (h *GenerationHandler) QueueMetrics(c *gin.Context) {
	metrics, err := h.queue.GetMetrics(c.Request.Context())
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Queue metrics retrieved", metrics)
}

// QueueHealth is a liveness probe distinct from the process /health
// check: it confirms the queue backend itself is reachable.
func (h *GenerationHandler) QueueHealth(c *gin.Context) {
	if _, err := h.queue.GetMetrics(c.Request.Context()); err != nil {
		utils.SendError(c, http.StatusServiceUnavailable, "queue backend unreachable", err)
		return
	}
	utils.SendSuccess(c, "Queue healthy", gin.H{"status": "ok"})
}
